package attestlend

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressString is the lowercase 0x form used in signed payloads.
func AddressString(addr common.Address) string {
	return hexutil.Encode(addr.Bytes())
}

func IsAddress(s string) bool {
	return common.IsHexAddress(s) && strings.HasPrefix(s, "0x")
}

func ParseAddress(s string) (common.Address, error) {
	if !IsAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func ParseIdentifier(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid identifier: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid identifier length: %d", len(b))
	}
	return common.BytesToHash(b), nil
}

func PrivKeyToAddr(privatekey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
