package kvstore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

func balanceKey(token, account common.Address) string {
	return "balance:" + attestlend.AddressString(token) + ":" + attestlend.AddressString(account)
}

func allowanceKey(token, owner, spender common.Address) string {
	return "allowance:" + attestlend.AddressString(token) + ":" + attestlend.AddressString(owner) + ":" + attestlend.AddressString(spender)
}

// BalanceRepository stores amounts as 32-byte big-endian words.
type BalanceRepository struct {
	db *DB
}

func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) amount(ctx context.Context, key string) (*uint256.Int, error) {
	data, err := r.db.get(ctx, key)
	if err != nil {
		if domain.IsNotFound(err) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

func (r *BalanceRepository) setAmount(ctx context.Context, key string, amount *uint256.Int) error {
	word := amount.Bytes32()
	return r.db.put(ctx, key, word[:])
}

func (r *BalanceRepository) Balance(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	return r.amount(ctx, balanceKey(token, account))
}

func (r *BalanceRepository) SetBalance(ctx context.Context, token, account common.Address, amount *uint256.Int) error {
	return r.setAmount(ctx, balanceKey(token, account), amount)
}

func (r *BalanceRepository) Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	return r.amount(ctx, allowanceKey(token, owner, spender))
}

func (r *BalanceRepository) SetAllowance(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	return r.setAmount(ctx, allowanceKey(token, owner, spender), amount)
}
