package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/internal/infra/database/models"
)

type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, loan domain.Loan) (uint64, error) {
	row := fromLoan(loan)
	row.ID = 0
	if err := conn(ctx, r.db).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *LoanRepository) Get(ctx context.Context, id uint64) (domain.Loan, error) {
	var row models.Loan
	if err := conn(ctx, r.db).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Loan{}, notFound(err, "loan")
	}
	return toLoan(row)
}

func (r *LoanRepository) Update(ctx context.Context, loan domain.Loan) error {
	row := fromLoan(loan)
	result := conn(ctx, r.db).Model(&models.Loan{}).Where("id = ?", loan.ID).Updates(map[string]any{
		"lender":        row.Lender,
		"interest_rate": row.InterestRate,
		"duration":      row.Duration,
		"status":        row.Status,
		"start_time":    row.StartTime,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFound("loan")
	}
	return nil
}

func (r *LoanRepository) AddOffer(ctx context.Context, loanID uint64, offer domain.Offer) (int, error) {
	db := conn(ctx, r.db)

	var loan models.Loan
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", loanID).Take(&loan).Error
	if err != nil {
		return 0, notFound(err, "loan")
	}

	var count int64
	if err := db.Model(&models.Offer{}).Where("loan_id = ?", loanID).Count(&count).Error; err != nil {
		return 0, err
	}

	row := models.Offer{
		LoanID:       loanID,
		Position:     int(count),
		Lender:       attestlend.AddressString(offer.Lender),
		InterestRate: offer.InterestRate,
	}
	if err := db.Omit(clause.Associations).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.Position, nil
}

func (r *LoanRepository) Offers(ctx context.Context, loanID uint64) ([]domain.Offer, error) {
	var rows []models.Offer
	err := conn(ctx, r.db).Where("loan_id = ?", loanID).Order("position ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	offers := make([]domain.Offer, len(rows))
	for i, row := range rows {
		offers[i] = domain.Offer{
			Lender:       common.HexToAddress(row.Lender),
			InterestRate: row.InterestRate,
		}
	}
	return offers, nil
}

func fromLoan(loan domain.Loan) models.Loan {
	var lender string
	if loan.Lender != (common.Address{}) {
		lender = attestlend.AddressString(loan.Lender)
	}
	return models.Loan{
		ID:               loan.ID,
		Borrower:         attestlend.AddressString(loan.Borrower),
		Lender:           lender,
		Amount:           decimal(loan.Amount),
		InterestRate:     loan.InterestRate,
		Duration:         loan.Duration,
		CollateralToken:  attestlend.AddressString(loan.CollateralToken),
		CollateralAmount: decimal(loan.CollateralAmount),
		Status:           loan.Status.String(),
		StartTime:        loan.StartTime,
	}
}

func toLoan(row models.Loan) (domain.Loan, error) {
	amount, err := uint256.FromDecimal(row.Amount)
	if err != nil {
		return domain.Loan{}, errors.Wrapf(err, "loan %d amount", row.ID)
	}
	collateral, err := uint256.FromDecimal(row.CollateralAmount)
	if err != nil {
		return domain.Loan{}, errors.Wrapf(err, "loan %d collateral", row.ID)
	}
	var status domain.LoanStatus
	if err := status.UnmarshalText([]byte(row.Status)); err != nil {
		return domain.Loan{}, errors.Wrapf(err, "loan %d", row.ID)
	}

	var lender common.Address
	if row.Lender != "" {
		lender = common.HexToAddress(row.Lender)
	}
	return domain.Loan{
		ID:               row.ID,
		Borrower:         common.HexToAddress(row.Borrower),
		Lender:           lender,
		Amount:           amount,
		InterestRate:     row.InterestRate,
		Duration:         row.Duration,
		CollateralToken:  common.HexToAddress(row.CollateralToken),
		CollateralAmount: collateral,
		Status:           status,
		StartTime:        row.StartTime,
	}, nil
}

func decimal(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}
