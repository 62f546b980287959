package attestlend

import (
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// ExtractField returns the text between markerPrefix and the next quote
// that is not preceded by a backslash. A missing marker or an unterminated
// value yields "".
func ExtractField(context, markerPrefix string) string {
	start := strings.Index(context, markerPrefix)
	if start < 0 {
		return ""
	}
	start += len(markerPrefix)

	for i := start; i < len(context); i++ {
		if context[i] == '"' && (i == 0 || context[i-1] != '\\') {
			return context[start:i]
		}
	}
	return ""
}

// FieldMarker builds the marker used for a "name":"value" pair.
func FieldMarker(name string) string {
	return `"` + name + `":"`
}

// ParseUintLenient reads the decimal digits of s and ignores everything else,
// so "7,50" parses as 750.
func ParseUintLenient(s string) (*uint256.Int, error) {
	result := new(uint256.Int)
	ten := uint256.NewInt(10)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		if _, overflow := result.MulOverflow(result, ten); overflow {
			return nil, errorsmod.Wrapf(ErrIncorrectAmount, "value %q overflows 256 bits", s)
		}
		if _, overflow := result.AddOverflow(result, uint256.NewInt(uint64(c-'0'))); overflow {
			return nil, errorsmod.Wrapf(ErrIncorrectAmount, "value %q overflows 256 bits", s)
		}
	}
	return result, nil
}

// Extractor pulls a single value out of a claim context.
type Extractor interface {
	Extract(context string) string
}

// FieldExtractor extracts the value following Marker.
type FieldExtractor struct {
	Marker string
}

func NewFieldExtractor(name string) FieldExtractor {
	return FieldExtractor{Marker: FieldMarker(name)}
}

func (f FieldExtractor) Extract(context string) string {
	return ExtractField(context, f.Marker)
}

// ExtractorFunc adapts a plain function.
type ExtractorFunc func(context string) string

func (f ExtractorFunc) Extract(context string) string {
	return f(context)
}
