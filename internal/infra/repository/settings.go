package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/internal/infra/database/models"
)

const (
	settingOwner  = "owner"
	settingPaused = "paused"
)

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := conn(ctx, r.db).Where("key = ?", key).Take(&setting).Error; err != nil {
		return "", notFound(err, key)
	}
	return setting.Value, nil
}

func (r *SettingsRepository) set(ctx context.Context, key, value string) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

func (r *SettingsRepository) Owner(ctx context.Context) (common.Address, error) {
	value, err := r.get(ctx, settingOwner)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(value), nil
}

func (r *SettingsRepository) SetOwner(ctx context.Context, owner common.Address) error {
	return r.set(ctx, settingOwner, attestlend.AddressString(owner))
}

func (r *SettingsRepository) Paused(ctx context.Context) (bool, error) {
	value, err := r.get(ctx, settingPaused)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (r *SettingsRepository) SetPaused(ctx context.Context, paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	return r.set(ctx, settingPaused, value)
}

func (r *SettingsRepository) CredentialType(ctx context.Context, id uint64) (domain.CredentialType, error) {
	var row models.CredentialType
	if err := conn(ctx, r.db).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.CredentialType{}, notFound(err, "credential type")
	}
	return domain.CredentialType{ID: row.ID, Label: row.Label}, nil
}

func (r *SettingsRepository) SetCredentialType(ctx context.Context, credentialType domain.CredentialType) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"label"}),
	}).Create(&models.CredentialType{
		ID:    credentialType.ID,
		Label: credentialType.Label,
	}).Error
}

func (r *SettingsRepository) ProviderAllowed(ctx context.Context, provider string) (bool, error) {
	var row models.Provider
	err := conn(ctx, r.db).Where("name = ?", provider).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SettingsRepository) SetProviderAllowed(ctx context.Context, provider string, allowed bool) error {
	db := conn(ctx, r.db)
	if !allowed {
		return db.Delete(&models.Provider{}, "name = ?", provider).Error
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Provider{Name: provider}).Error
}
