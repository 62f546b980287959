package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/attestlend/internal/domain"
)

const loanSequenceKey = "seq:loan"

func loanKey(id uint64) string {
	return fmt.Sprintf("loan:%020d", id)
}

func offerPrefix(loanID uint64) string {
	return fmt.Sprintf("offer:%020d:", loanID)
}

type LoanRepository struct {
	db *DB
}

func NewLoanRepository(db *DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create assigns the next id, starting at 1.
func (r *LoanRepository) Create(ctx context.Context, loan domain.Loan) (uint64, error) {
	var next uint64 = 1
	data, err := r.db.get(ctx, loanSequenceKey)
	switch {
	case err == nil:
		next = binary.BigEndian.Uint64(data) + 1
	case domain.IsNotFound(err):
	default:
		return 0, err
	}

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, next)
	if err := r.db.put(ctx, loanSequenceKey, seq); err != nil {
		return 0, err
	}

	loan.ID = next
	if err := r.db.putJSON(ctx, loanKey(next), loan); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *LoanRepository) Get(ctx context.Context, id uint64) (domain.Loan, error) {
	var loan domain.Loan
	if err := r.db.getJSON(ctx, loanKey(id), &loan); err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

func (r *LoanRepository) Update(ctx context.Context, loan domain.Loan) error {
	if _, err := r.db.get(ctx, loanKey(loan.ID)); err != nil {
		return err
	}
	return r.db.putJSON(ctx, loanKey(loan.ID), loan)
}

func (r *LoanRepository) AddOffer(ctx context.Context, loanID uint64, offer domain.Offer) (int, error) {
	offers, err := r.Offers(ctx, loanID)
	if err != nil {
		return 0, err
	}
	index := len(offers)
	key := fmt.Sprintf("%s%010d", offerPrefix(loanID), index)
	if err := r.db.putJSON(ctx, key, offer); err != nil {
		return 0, err
	}
	return index, nil
}

func (r *LoanRepository) Offers(ctx context.Context, loanID uint64) ([]domain.Offer, error) {
	offers := []domain.Offer{}
	err := r.db.scan(ctx, offerPrefix(loanID), func(_, value []byte) error {
		var offer domain.Offer
		if err := json.Unmarshal(value, &offer); err != nil {
			return errors.Wrap(err, "decode offer")
		}
		offers = append(offers, offer)
		return nil
	})
	return offers, err
}
