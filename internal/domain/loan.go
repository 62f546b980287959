package domain

import (
	"fmt"
	"math"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
)

type LoanStatus int

const (
	LoanStatusRequested LoanStatus = iota
	LoanStatusActive
	LoanStatusRepaid
	LoanStatusLiquidated
	LoanStatusCancelled
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusRequested:
		return "requested"
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusLiquidated:
		return "liquidated"
	case LoanStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s LoanStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoanStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []LoanStatus{
		LoanStatusRequested,
		LoanStatusActive,
		LoanStatusRepaid,
		LoanStatusLiquidated,
		LoanStatusCancelled,
	} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown loan status %q", text)
}

// Loan is retained forever once requested.
// Lender stays the zero address until an offer is accepted.
type Loan struct {
	ID               uint64         `json:"id"`
	Borrower         common.Address `json:"borrower"`
	Lender           common.Address `json:"lender"`
	Amount           *uint256.Int   `json:"amount"`
	InterestRate     uint64         `json:"interestRate"`
	Duration         uint64         `json:"duration"`
	CollateralToken  common.Address `json:"collateralToken"`
	CollateralAmount *uint256.Int   `json:"collateralAmount"`
	Status           LoanStatus     `json:"status"`
	StartTime        uint64         `json:"startTime"`
}

// Offer is immutable once placed.
type Offer struct {
	Lender       common.Address `json:"lender"`
	InterestRate uint64         `json:"interestRate"`
}

// RepaymentAmount is principal plus simple interest, with the interest
// rounded down: amount + amount*rate*duration / (365 days * 10000).
func RepaymentAmount(amount *uint256.Int, interestRate, duration uint64) (*uint256.Int, error) {
	interest, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(interestRate))
	if !overflow {
		interest, overflow = interest.MulOverflow(interest, uint256.NewInt(duration))
	}
	if overflow {
		return nil, errorsmod.Wrap(attestlend.ErrIncorrectAmount, "interest overflows 256 bits")
	}

	interest.Div(interest, uint256.NewInt(SecondsPerYear*BasisPointsScale))

	total, overflow := new(uint256.Int).AddOverflow(amount, interest)
	if overflow {
		return nil, errorsmod.Wrap(attestlend.ErrIncorrectAmount, "repayment overflows 256 bits")
	}
	return total, nil
}

func (l Loan) RepaymentAmount() (*uint256.Int, error) {
	return RepaymentAmount(l.Amount, l.InterestRate, l.Duration)
}

// DueAt is the first instant after which the loan can be liquidated.
// It saturates instead of wrapping for durations reaching past 2^64.
func (l Loan) DueAt() uint64 {
	if l.Duration > math.MaxUint64-l.StartTime {
		return math.MaxUint64
	}
	return l.StartTime + l.Duration
}

// PastDue reports whether now lies strictly after StartTime+Duration,
// comparing elapsed time so that no sum can overflow.
func (l Loan) PastDue(now uint64) bool {
	return now > l.StartTime && now-l.StartTime > l.Duration
}
