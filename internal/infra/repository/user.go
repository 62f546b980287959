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

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, address common.Address) (domain.User, error) {
	user := domain.NewUser(address)

	var row models.User
	err := conn(ctx, r.db).Preload("Credentials").Where("address = ?", attestlend.AddressString(address)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, nil
		}
		return domain.User{}, err
	}

	score, err := uint256.FromDecimal(row.CreditScore)
	if err != nil {
		return domain.User{}, errors.Wrapf(err, "credit score of %s", row.Address)
	}
	user.CreditScore = score
	user.IsVerified = row.IsVerified
	for _, credential := range row.Credentials {
		user.Credentials[credential.TypeID] = credential.Value
	}
	return user, nil
}

func (r *UserRepository) SetCreditScore(ctx context.Context, address common.Address, score *uint256.Int) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"credit_score", "is_verified"}),
	}).Omit(clause.Associations).Create(&models.User{
		Address:     attestlend.AddressString(address),
		CreditScore: score.Dec(),
		IsVerified:  true,
	}).Error
}

func (r *UserRepository) SetCredential(ctx context.Context, address common.Address, typeID uint64, value string) error {
	db := conn(ctx, r.db)
	key := attestlend.AddressString(address)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_verified"}),
	}).Omit(clause.Associations).Create(&models.User{
		Address:     key,
		CreditScore: "0",
		IsVerified:  true,
	}).Error
	if err != nil {
		return err
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}, {Name: "type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Credential{
		Address: key,
		TypeID:  typeID,
		Value:   value,
	}).Error
}
