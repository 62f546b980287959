package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

// EpochRepository is the append-only epoch history.
// Get and Latest return domain.ErrNotFound on a miss.
type EpochRepository interface {
	Append(ctx context.Context, epoch attestlend.Epoch) error
	SetEndTime(ctx context.Context, id uint32, endTime uint32) error
	Get(ctx context.Context, id uint32) (attestlend.Epoch, error)
	Latest(ctx context.Context) (attestlend.Epoch, error)
	List(ctx context.Context) ([]attestlend.Epoch, error)
}

// LoanRepository stores loans and their offers. Create assigns the id.
type LoanRepository interface {
	Create(ctx context.Context, loan domain.Loan) (uint64, error)
	Get(ctx context.Context, id uint64) (domain.Loan, error)
	Update(ctx context.Context, loan domain.Loan) error
	AddOffer(ctx context.Context, loanID uint64, offer domain.Offer) (int, error)
	Offers(ctx context.Context, loanID uint64) ([]domain.Offer, error)
}

// UserRepository returns a fresh domain.User for unknown addresses.
// Both setters mark the user verified.
type UserRepository interface {
	Get(ctx context.Context, address common.Address) (domain.User, error)
	SetCreditScore(ctx context.Context, address common.Address, score *uint256.Int) error
	SetCredential(ctx context.Context, address common.Address, typeID uint64, value string) error
}

// SettingsRepository holds the administrator controlled switches.
type SettingsRepository interface {
	Owner(ctx context.Context) (common.Address, error)
	SetOwner(ctx context.Context, owner common.Address) error
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	CredentialType(ctx context.Context, id uint64) (domain.CredentialType, error)
	SetCredentialType(ctx context.Context, credentialType domain.CredentialType) error
	ProviderAllowed(ctx context.Context, provider string) (bool, error)
	SetProviderAllowed(ctx context.Context, provider string, allowed bool) error
}

// TokenLedger is the fungible token collaborator. from on Transfer is the
// account whose tokens move, i.e. the escrow for releases.
type TokenLedger interface {
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

// BalanceRepository is the raw storage behind the token book.
// Missing balances and allowances read as zero.
type BalanceRepository interface {
	Balance(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	SetBalance(ctx context.Context, token, account common.Address, amount *uint256.Int) error
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	SetAllowance(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error
}

// Transactor runs fn so that either all of its writes land or none do.
// Repositories pick the transaction up from the context passed to fn.
type Transactor interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event attestlend.Event) error
}

// EventIndex keeps published events for later queries.
type EventIndex interface {
	EventPublisher
	Since(ctx context.Context, timestamp int64, limit int) ([]attestlend.Event, error)
}

// CommitteeCache memoises committee selections.
type CommitteeCache interface {
	Get(ctx context.Context, key string) ([]attestlend.Witness, bool)
	Set(ctx context.Context, key string, committee []attestlend.Witness)
}

// ZKVerifier is the hook for zero-knowledge proof checks.
type ZKVerifier interface {
	VerifyZK(ctx context.Context, proof attestlend.Proof) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NoopZKVerifier accepts every proof.
// TODO: replace once witnesses ship zero-knowledge transcripts with their claims.
type NoopZKVerifier struct{}

func (NoopZKVerifier) VerifyZK(ctx context.Context, proof attestlend.Proof) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event attestlend.Event) error { return nil }

// MultiPublisher fans an event out to every publisher and returns the first error.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event attestlend.Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
