package kvstore

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/totegamma/attestlend/internal/domain"
)

const (
	ownerKey  = "setting:owner"
	pausedKey = "setting:paused"
)

func credentialTypeKey(id uint64) string {
	return fmt.Sprintf("credtype:%020d", id)
}

func providerKey(provider string) string {
	return "provider:" + provider
}

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Owner(ctx context.Context) (common.Address, error) {
	data, err := r.db.get(ctx, ownerKey)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

func (r *SettingsRepository) SetOwner(ctx context.Context, owner common.Address) error {
	return r.db.put(ctx, ownerKey, owner.Bytes())
}

func (r *SettingsRepository) Paused(ctx context.Context) (bool, error) {
	data, err := r.db.get(ctx, pausedKey)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return len(data) == 1 && data[0] == 1, nil
}

func (r *SettingsRepository) SetPaused(ctx context.Context, paused bool) error {
	value := []byte{0}
	if paused {
		value[0] = 1
	}
	return r.db.put(ctx, pausedKey, value)
}

func (r *SettingsRepository) CredentialType(ctx context.Context, id uint64) (domain.CredentialType, error) {
	var credentialType domain.CredentialType
	if err := r.db.getJSON(ctx, credentialTypeKey(id), &credentialType); err != nil {
		return domain.CredentialType{}, err
	}
	return credentialType, nil
}

func (r *SettingsRepository) SetCredentialType(ctx context.Context, credentialType domain.CredentialType) error {
	return r.db.putJSON(ctx, credentialTypeKey(credentialType.ID), credentialType)
}

func (r *SettingsRepository) ProviderAllowed(ctx context.Context, provider string) (bool, error) {
	_, err := r.db.get(ctx, providerKey(provider))
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SettingsRepository) SetProviderAllowed(ctx context.Context, provider string, allowed bool) error {
	if allowed {
		return r.db.put(ctx, providerKey(provider), []byte{1})
	}
	err := r.db.handle(ctx).Delete([]byte(providerKey(provider)), nil)
	return errors.Wrapf(err, "delete provider %s", provider)
}
