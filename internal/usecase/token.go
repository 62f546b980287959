package usecase

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
)

// TokenBook is a TokenLedger kept in the same store as the loans, so
// escrow movements commit or roll back together with the loan state.
// An allowance of 2^256-1 is treated as unlimited and never decremented.
type TokenBook struct {
	repo BalanceRepository
}

func NewTokenBook(repo BalanceRepository) *TokenBook {
	return &TokenBook{repo: repo}
}

func (b *TokenBook) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	if spender != from {
		allowance, err := b.repo.Allowance(ctx, token, from, spender)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return errorsmod.Wrapf(
				attestlend.ErrInsufficientFunds,
				"allowance of %s for %s is %s, need %s",
				attestlend.AddressString(from), attestlend.AddressString(spender), allowance.Dec(), amount.Dec(),
			)
		}
		if !isUnlimited(allowance) {
			remaining := new(uint256.Int).Sub(allowance, amount)
			if err := b.repo.SetAllowance(ctx, token, from, spender, remaining); err != nil {
				return err
			}
		}
	}
	return b.move(ctx, token, from, to, amount)
}

func (b *TokenBook) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	return b.move(ctx, token, from, to, amount)
}

func (b *TokenBook) move(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	balance, err := b.repo.Balance(ctx, token, from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return errorsmod.Wrapf(
			attestlend.ErrInsufficientFunds,
			"balance of %s is %s, need %s",
			attestlend.AddressString(from), balance.Dec(), amount.Dec(),
		)
	}
	if from == to {
		return nil
	}

	if err := b.repo.SetBalance(ctx, token, from, new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}

	target, err := b.repo.Balance(ctx, token, to)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(target, amount)
	if overflow {
		return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "balance overflows 256 bits")
	}
	return b.repo.SetBalance(ctx, token, to, sum)
}

func isUnlimited(amount *uint256.Int) bool {
	return amount.Eq(new(uint256.Int).SetAllOne())
}

// TokenUsecase exposes the book to account holders.
type TokenUsecase struct {
	seq  *Sequencer
	repo BalanceRepository
}

func NewTokenUsecase(seq *Sequencer, repo BalanceRepository) *TokenUsecase {
	return &TokenUsecase{
		seq:  seq,
		repo: repo,
	}
}

func (uc *TokenUsecase) Approve(ctx context.Context, owner, token, spender common.Address, amount *uint256.Int) error {
	return uc.seq.Run(ctx, "Token.Usecase.Approve", GatePaused, func(ctx context.Context, op *Operation) error {
		if amount == nil {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "amount is required")
		}
		return uc.repo.SetAllowance(ctx, token, owner, spender, amount)
	})
}

// Mint credits new tokens. Only the administrator may mint.
func (uc *TokenUsecase) Mint(ctx context.Context, caller, token, to common.Address, amount *uint256.Int) error {
	return uc.seq.Run(ctx, "Token.Usecase.Mint", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "amount must be positive")
		}

		balance, err := uc.repo.Balance(ctx, token, to)
		if err != nil {
			return err
		}
		sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
		if overflow {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "balance overflows 256 bits")
		}
		return uc.repo.SetBalance(ctx, token, to, sum)
	})
}

func (uc *TokenUsecase) BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	ctx, span := tracer.Start(ctx, "Token.Usecase.BalanceOf")
	defer span.End()

	return uc.repo.Balance(ctx, token, account)
}

func (uc *TokenUsecase) Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	ctx, span := tracer.Start(ctx, "Token.Usecase.Allowance")
	defer span.End()

	return uc.repo.Allowance(ctx, token, owner, spender)
}
