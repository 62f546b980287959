package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/infra/database/models"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Balance(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	var row models.TokenBalance
	err := conn(ctx, r.db).
		Where("token = ? AND account = ?", attestlend.AddressString(token), attestlend.AddressString(account)).
		Take(&row).Error
	return amountOf(row.Amount, err)
}

func (r *BalanceRepository) SetBalance(ctx context.Context, token, account common.Address, amount *uint256.Int) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&models.TokenBalance{
		Token:   attestlend.AddressString(token),
		Account: attestlend.AddressString(account),
		Amount:  amount.Dec(),
	}).Error
}

func (r *BalanceRepository) Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	var row models.TokenAllowance
	err := conn(ctx, r.db).
		Where(
			"token = ? AND owner = ? AND spender = ?",
			attestlend.AddressString(token), attestlend.AddressString(owner), attestlend.AddressString(spender),
		).
		Take(&row).Error
	return amountOf(row.Amount, err)
}

func (r *BalanceRepository) SetAllowance(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&models.TokenAllowance{
		Token:   attestlend.AddressString(token),
		Owner:   attestlend.AddressString(owner),
		Spender: attestlend.AddressString(spender),
		Amount:  amount.Dec(),
	}).Error
}

// amountOf reads a missing row as zero.
func amountOf(value string, err error) (*uint256.Int, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, errors.Wrap(err, "stored amount")
	}
	return amount, nil
}
