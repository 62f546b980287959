package kvstore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

func userKey(address common.Address) string {
	return "user:" + attestlend.AddressString(address)
}

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, address common.Address) (domain.User, error) {
	user := domain.NewUser(address)
	err := r.db.getJSON(ctx, userKey(address), &user)
	if err != nil && !domain.IsNotFound(err) {
		return domain.User{}, err
	}
	if user.Credentials == nil {
		user.Credentials = map[uint64]string{}
	}
	if user.CreditScore == nil {
		user.CreditScore = new(uint256.Int)
	}
	return user, nil
}

func (r *UserRepository) SetCreditScore(ctx context.Context, address common.Address, score *uint256.Int) error {
	user, err := r.Get(ctx, address)
	if err != nil {
		return err
	}
	user.CreditScore = new(uint256.Int).Set(score)
	user.IsVerified = true
	return r.db.putJSON(ctx, userKey(address), user)
}

func (r *UserRepository) SetCredential(ctx context.Context, address common.Address, typeID uint64, value string) error {
	user, err := r.Get(ctx, address)
	if err != nil {
		return err
	}
	user.Credentials[typeID] = value
	user.IsVerified = true
	return r.db.putJSON(ctx, userKey(address), user)
}
