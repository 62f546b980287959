package usecase_test

import (
	"context"
	"crypto/ecdsa"
	"math"
	"sync"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/internal/infra/kvstore"
	"github.com/totegamma/attestlend/internal/usecase"
)

const day = uint64(24 * 3600)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	events []attestlend.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event attestlend.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	types := make([]string, len(p.events))
	for i, event := range p.events {
		types[i] = event.Type
	}
	return types
}

type fixture struct {
	ctx       context.Context
	clock     *fakeClock
	events    *recordingPublisher
	settings  *kvstore.SettingsRepository
	balances  *kvstore.BalanceRepository
	ledger    *usecase.LedgerUsecase
	tokens    *usecase.TokenUsecase
	witnesses map[common.Address]*ecdsa.PrivateKey

	admin      common.Address
	borrower   common.Address
	lender     common.Address
	escrow     common.Address
	collateral common.Address
	lending    common.Address
}

func newFixture(t *testing.T, wrap func(usecase.TokenLedger) usecase.TokenLedger) *fixture {
	db, err := kvstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		ctx:        context.Background(),
		clock:      &fakeClock{now: time.Unix(1_700_000_000, 0)},
		events:     &recordingPublisher{},
		settings:   kvstore.NewSettingsRepository(db),
		balances:   kvstore.NewBalanceRepository(db),
		witnesses:  map[common.Address]*ecdsa.PrivateKey{},
		admin:      common.HexToAddress("0x00000000000000000000000000000000000000ad"),
		borrower:   common.HexToAddress("0x00000000000000000000000000000000000000b0"),
		lender:     common.HexToAddress("0x00000000000000000000000000000000000000e1"),
		escrow:     common.HexToAddress("0x00000000000000000000000000000000000000e5"),
		collateral: common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		lending:    common.HexToAddress("0x00000000000000000000000000000000000000d0"),
	}

	seq := usecase.NewSequencer(db, f.settings, f.events, f.clock, zap.NewNop())
	epochs := usecase.NewEpochUsecase(kvstore.NewEpochRepository(db), 0)
	verifier := usecase.NewVerifierUsecase(epochs, nil, nil)

	var tokens usecase.TokenLedger = usecase.NewTokenBook(f.balances)
	if wrap != nil {
		tokens = wrap(tokens)
	}

	f.ledger = usecase.NewLedgerUsecase(
		seq,
		kvstore.NewLoanRepository(db),
		kvstore.NewUserRepository(db),
		f.settings,
		tokens,
		epochs,
		verifier,
		usecase.LedgerConfig{Escrow: f.escrow, LendingToken: f.lending},
		zap.NewNop(),
	)
	f.tokens = usecase.NewTokenUsecase(seq, f.balances)

	require.NoError(t, f.ledger.Initialize(f.ctx, f.admin, []string{"http"}))

	unlimited := new(uint256.Int).SetAllOne()
	require.NoError(t, f.tokens.Mint(f.ctx, f.admin, f.collateral, f.borrower, uint256.NewInt(1000)))
	require.NoError(t, f.tokens.Mint(f.ctx, f.admin, f.lending, f.lender, uint256.NewInt(20000)))
	require.NoError(t, f.tokens.Mint(f.ctx, f.admin, f.lending, f.borrower, uint256.NewInt(500)))
	require.NoError(t, f.tokens.Approve(f.ctx, f.borrower, f.collateral, f.escrow, unlimited))
	require.NoError(t, f.tokens.Approve(f.ctx, f.borrower, f.lending, f.escrow, unlimited))
	require.NoError(t, f.tokens.Approve(f.ctx, f.lender, f.lending, f.escrow, unlimited))

	f.events.events = nil
	return f
}

func (f *fixture) balance(t *testing.T, token, account common.Address) uint64 {
	balance, err := f.tokens.BalanceOf(f.ctx, token, account)
	require.NoError(t, err)
	return balance.Uint64()
}

func (f *fixture) advance(d uint64) {
	f.clock.Set(f.clock.Now().Add(time.Duration(d) * time.Second))
}

func (f *fixture) requestLoan(t *testing.T) domain.Loan {
	loan, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
		Amount:           uint256.NewInt(10000),
		InterestRate:     500,
		Duration:         30 * day,
		CollateralToken:  f.collateral,
		CollateralAmount: uint256.NewInt(1000),
	})
	require.NoError(t, err)
	return loan
}

// fundedLoan runs request, offer and accept and returns the active loan.
func (f *fixture) fundedLoan(t *testing.T) domain.Loan {
	loan := f.requestLoan(t)
	index, err := f.ledger.PlaceOffer(f.ctx, f.lender, loan.ID, 400)
	require.NoError(t, err)
	require.NoError(t, f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, index))
	active, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	return active
}

func TestLoanLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	loan := f.requestLoan(t)
	require.Equal(t, uint64(1), loan.ID)
	require.Equal(t, domain.LoanStatusRequested, loan.Status)
	require.Equal(t, uint64(0), f.balance(t, f.collateral, f.borrower))
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.escrow))

	_, err := f.ledger.PlaceOffer(f.ctx, f.lender, loan.ID, 450)
	require.NoError(t, err)
	index, err := f.ledger.PlaceOffer(f.ctx, f.lender, loan.ID, 400)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	offers, err := f.ledger.GetOffers(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	require.NoError(t, f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, index))
	active, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusActive, active.Status)
	require.Equal(t, f.lender, active.Lender)
	require.Equal(t, uint64(400), active.InterestRate)
	require.Equal(t, uint64(f.clock.Now().Unix()), active.StartTime)
	require.Equal(t, uint64(10000), f.balance(t, f.lending, f.lender))
	require.Equal(t, uint64(10500), f.balance(t, f.lending, f.borrower))

	f.advance(10 * day)
	require.NoError(t, f.ledger.RepayLoan(f.ctx, f.borrower, loan.ID))

	repaid, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusRepaid, repaid.Status)
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.borrower))
	require.Equal(t, uint64(0), f.balance(t, f.collateral, f.escrow))
	require.Equal(t, uint64(20032), f.balance(t, f.lending, f.lender))
	require.Equal(t, uint64(468), f.balance(t, f.lending, f.borrower))

	require.Equal(t, []string{
		attestlend.EventLoanRequested,
		attestlend.EventOfferPlaced,
		attestlend.EventOfferPlaced,
		attestlend.EventOfferAccepted,
		attestlend.EventLoanRepaid,
	}, f.events.types())
	require.Equal(t, "10032", f.events.events[4].Value)

	err = f.ledger.RepayLoan(f.ctx, f.borrower, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrLoanNotInExpectedState)
}

func TestAcceptOfferTwice(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.fundedLoan(t)

	err := f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, 0)
	require.ErrorIs(t, err, attestlend.ErrLoanNotInExpectedState)
	require.Equal(t, uint64(10000), f.balance(t, f.lending, f.lender))
}

func TestRepaymentAndLiquidationTiming(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.fundedLoan(t)

	repayment, err := f.ledger.CalculateRepaymentAmount(f.ctx, loan.ID)
	require.NoError(t, err)
	// 10000 + floor(10000*400*2592000 / (31536000*10000))
	require.Equal(t, "10032", repayment.Dec())

	outsider := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	f.advance(29 * day)
	err = f.ledger.LiquidateLoan(f.ctx, outsider, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue)

	f.advance(day)
	err = f.ledger.LiquidateLoan(f.ctx, outsider, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue, "the due instant itself is not past due")

	f.advance(day)
	require.NoError(t, f.ledger.LiquidateLoan(f.ctx, outsider, loan.ID))

	liquidated, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusLiquidated, liquidated.Status)
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.lender))
	require.Equal(t, uint64(0), f.balance(t, f.collateral, f.escrow))
	require.Equal(t, uint64(0), f.balance(t, f.collateral, f.borrower))

	err = f.ledger.RepayLoan(f.ctx, f.borrower, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrLoanNotInExpectedState)
}

func TestCancelLoan(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.requestLoan(t)

	err := f.ledger.CancelLoan(f.ctx, f.lender, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrUnauthorized)

	require.NoError(t, f.ledger.CancelLoan(f.ctx, f.borrower, loan.ID))
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.borrower))

	cancelled, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusCancelled, cancelled.Status)

	_, err = f.ledger.PlaceOffer(f.ctx, f.lender, loan.ID, 400)
	require.ErrorIs(t, err, attestlend.ErrLoanNotInExpectedState)
	err = f.ledger.CancelLoan(f.ctx, f.borrower, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrLoanNotInExpectedState)
}

func TestExtendLoanDuration(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.fundedLoan(t)

	err := f.ledger.ExtendLoanDuration(f.ctx, f.borrower, loan.ID, 60*day)
	require.ErrorIs(t, err, attestlend.ErrUnauthorized)

	err = f.ledger.ExtendLoanDuration(f.ctx, f.lender, loan.ID, 30*day)
	require.ErrorIs(t, err, attestlend.ErrIncorrectAmount)

	require.NoError(t, f.ledger.ExtendLoanDuration(f.ctx, f.lender, loan.ID, 60*day))
	extended, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, 60*day, extended.Duration)

	f.advance(31 * day)
	err = f.ledger.LiquidateLoan(f.ctx, f.lender, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue)
}

func TestHugeDurationIsNeverDue(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.fundedLoan(t)

	require.NoError(t, f.ledger.ExtendLoanDuration(f.ctx, f.lender, loan.ID, math.MaxUint64))

	f.advance(1)
	err := f.ledger.LiquidateLoan(f.ctx, f.lender, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue)
	f.advance(400 * day)
	err = f.ledger.LiquidateLoan(f.ctx, f.lender, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue)

	active, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusActive, active.Status)
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.escrow))
	require.Equal(t, uint64(0), f.balance(t, f.collateral, f.lender))
}

func TestHugeRequestedDurationIsNeverDue(t *testing.T) {
	f := newFixture(t, nil)
	loan, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
		Amount:           uint256.NewInt(10),
		InterestRate:     0,
		Duration:         math.MaxUint64 - 10,
		CollateralToken:  f.collateral,
		CollateralAmount: uint256.NewInt(1000),
	})
	require.NoError(t, err)
	index, err := f.ledger.PlaceOffer(f.ctx, f.lender, loan.ID, 0)
	require.NoError(t, err)
	require.NoError(t, f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, index))

	f.advance(1)
	err = f.ledger.LiquidateLoan(f.ctx, f.lender, loan.ID)
	require.ErrorIs(t, err, attestlend.ErrNotYetDue)
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.escrow))
}

func TestLedgerRejections(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.requestLoan(t)

	testCases := []struct {
		name   string
		run    func() error
		expErr error
	}{
		{
			name:   "unknown loan",
			run:    func() error { _, err := f.ledger.GetLoan(f.ctx, 42); return err },
			expErr: attestlend.ErrLoanNotFound,
		},
		{
			name:   "offer on unknown loan",
			run:    func() error { _, err := f.ledger.PlaceOffer(f.ctx, f.lender, 42, 400); return err },
			expErr: attestlend.ErrLoanNotFound,
		},
		{
			name:   "accept by someone else",
			run:    func() error { return f.ledger.AcceptOffer(f.ctx, f.lender, loan.ID, 0) },
			expErr: attestlend.ErrUnauthorized,
		},
		{
			name:   "accept without offers",
			run:    func() error { return f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, 0) },
			expErr: attestlend.ErrInvalidOfferIndex,
		},
		{
			name:   "negative offer index",
			run:    func() error { return f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, -1) },
			expErr: attestlend.ErrInvalidOfferIndex,
		},
		{
			name:   "repay before funding",
			run:    func() error { return f.ledger.RepayLoan(f.ctx, f.borrower, loan.ID) },
			expErr: attestlend.ErrLoanNotInExpectedState,
		},
		{
			name:   "liquidate before funding",
			run:    func() error { return f.ledger.LiquidateLoan(f.ctx, f.lender, loan.ID) },
			expErr: attestlend.ErrLoanNotInExpectedState,
		},
		{
			name: "zero amount",
			run: func() error {
				_, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
					Amount:           uint256.NewInt(0),
					Duration:         day,
					CollateralToken:  f.collateral,
					CollateralAmount: uint256.NewInt(1),
				})
				return err
			},
			expErr: attestlend.ErrIncorrectAmount,
		},
		{
			name: "zero collateral",
			run: func() error {
				_, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
					Amount:           uint256.NewInt(1),
					Duration:         day,
					CollateralToken:  f.collateral,
					CollateralAmount: uint256.NewInt(0),
				})
				return err
			},
			expErr: attestlend.ErrIncorrectAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), tc.expErr)
		})
	}
}

func TestFailedTransferLeavesNoState(t *testing.T) {
	f := newFixture(t, nil)
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := f.ledger.RequestLoan(f.ctx, stranger, usecase.RequestLoanInput{
		Amount:           uint256.NewInt(10000),
		InterestRate:     500,
		Duration:         30 * day,
		CollateralToken:  f.collateral,
		CollateralAmount: uint256.NewInt(1000),
	})
	require.ErrorIs(t, err, attestlend.ErrTokenTransferFailed)
	require.ErrorIs(t, err, attestlend.ErrInsufficientFunds)
	require.True(t, attestlend.ErrTokenTransferFailed.Is(err))
	require.False(t, attestlend.ErrInsufficientFunds.Is(err))
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	require.Equal(t, attestlend.Codespace, codespace)
	require.Equal(t, attestlend.ErrTokenTransferFailed.ABCICode(), code)
	require.Contains(t, err.Error(), "escrow collateral")
	require.Contains(t, err.Error(), "allowance of")

	_, err = f.ledger.GetLoan(f.ctx, 1)
	require.ErrorIs(t, err, attestlend.ErrLoanNotFound)
	require.Empty(t, f.events.events)

	// the id was not consumed either
	loan := f.requestLoan(t)
	require.Equal(t, uint64(1), loan.ID)
}

func TestFailedFundingKeepsLoanRequested(t *testing.T) {
	f := newFixture(t, nil)
	loan := f.requestLoan(t)
	poor := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	index, err := f.ledger.PlaceOffer(f.ctx, poor, loan.ID, 100)
	require.NoError(t, err)

	err = f.ledger.AcceptOffer(f.ctx, f.borrower, loan.ID, index)
	require.ErrorIs(t, err, attestlend.ErrTokenTransferFailed)

	stored, err := f.ledger.GetLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusRequested, stored.Status)
	require.Equal(t, common.Address{}, stored.Lender)
}

func TestPauseGate(t *testing.T) {
	f := newFixture(t, nil)

	require.ErrorIs(t, f.ledger.Pause(f.ctx, f.borrower), attestlend.ErrUnauthorized)
	require.NoError(t, f.ledger.Pause(f.ctx, f.admin))

	_, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
		Amount:           uint256.NewInt(10000),
		Duration:         30 * day,
		CollateralToken:  f.collateral,
		CollateralAmount: uint256.NewInt(1000),
	})
	require.ErrorIs(t, err, attestlend.ErrPaused)

	err = f.tokens.Approve(f.ctx, f.borrower, f.collateral, f.escrow, uint256.NewInt(1))
	require.ErrorIs(t, err, attestlend.ErrPaused)
	_, err = f.ledger.AppendEpoch(f.ctx, f.admin, witnessRoster(t, f, 1), 1)
	require.ErrorIs(t, err, attestlend.ErrPaused)

	require.ErrorIs(t, f.ledger.Unpause(f.ctx, f.borrower), attestlend.ErrUnauthorized)
	require.NoError(t, f.ledger.Unpause(f.ctx, f.admin))

	_, err = f.ledger.GetLoan(f.ctx, 1)
	require.ErrorIs(t, err, attestlend.ErrLoanNotFound)
	require.Equal(t, uint64(1000), f.balance(t, f.collateral, f.borrower))

	loan := f.requestLoan(t)
	require.Equal(t, uint64(1), loan.ID)

	require.Equal(t, []string{
		attestlend.EventPaused,
		attestlend.EventUnpaused,
		attestlend.EventLoanRequested,
	}, f.events.types())
}

func TestInitializeWhilePaused(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.ledger.Pause(f.ctx, f.admin))

	require.NoError(t, f.ledger.Initialize(f.ctx, f.admin, []string{"https"}))
	allowed, err := f.settings.ProviderAllowed(f.ctx, "https")
	require.NoError(t, err)
	require.False(t, allowed)

	owner, err := f.ledger.Owner(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.admin, owner)

	require.NoError(t, f.ledger.Unpause(f.ctx, f.admin))
	require.NoError(t, f.ledger.Initialize(f.ctx, f.admin, []string{"https"}))
	allowed, err = f.settings.ProviderAllowed(f.ctx, "https")
	require.NoError(t, err)
	require.True(t, allowed)
}

// reentrantTokens calls back into the ledger from inside a transfer, the
// way a hostile token contract would.
type reentrantTokens struct {
	usecase.TokenLedger
	ledger   *usecase.LedgerUsecase
	borrower common.Address
	callback error
}

func (r *reentrantTokens) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	r.callback = r.ledger.CancelLoan(ctx, r.borrower, 1)
	return r.callback
}

func TestReentrantCallIsRejected(t *testing.T) {
	var tokens *reentrantTokens
	f := newFixture(t, func(inner usecase.TokenLedger) usecase.TokenLedger {
		tokens = &reentrantTokens{TokenLedger: inner}
		return tokens
	})
	tokens.ledger = f.ledger
	tokens.borrower = f.borrower

	_, err := f.ledger.RequestLoan(f.ctx, f.borrower, usecase.RequestLoanInput{
		Amount:           uint256.NewInt(10000),
		Duration:         30 * day,
		CollateralToken:  f.collateral,
		CollateralAmount: uint256.NewInt(1000),
	})
	require.ErrorIs(t, err, attestlend.ErrTokenTransferFailed)
	require.ErrorIs(t, err, attestlend.ErrReentrantCall)
	require.ErrorIs(t, tokens.callback, attestlend.ErrReentrantCall)

	_, err = f.ledger.GetLoan(f.ctx, 1)
	require.ErrorIs(t, err, attestlend.ErrLoanNotFound)
}

func witnessRoster(t *testing.T, f *fixture, n int) []attestlend.Witness {
	roster := make([]attestlend.Witness, n)
	for i := range roster {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		address := crypto.PubkeyToAddress(key.PublicKey)
		f.witnesses[address] = key
		roster[i] = attestlend.Witness{Address: address, Host: "wss://witness.example"}
	}
	return roster
}

// attest builds a proof for owner signed by the committee of the current epoch.
func (f *fixture) attest(t *testing.T, owner common.Address, info attestlend.ClaimInfo) attestlend.Proof {
	claim := attestlend.CompleteClaimData{
		Identifier: attestlend.HashClaimInfo(info),
		Owner:      owner,
		TimestampS: uint32(f.clock.Now().Unix()),
		Epoch:      1,
	}
	committee, err := attestlend.SelectCommittee(f.currentEpoch(t), claim.Identifier, claim.TimestampS)
	require.NoError(t, err)

	signatures := make([]hexutil.Bytes, len(committee))
	for i, witness := range committee {
		sig, err := attestlend.SignClaim(claim, f.witnesses[witness.Address])
		require.NoError(t, err)
		signatures[i] = sig
	}
	return attestlend.Proof{
		ClaimInfo:   info,
		SignedClaim: attestlend.SignedClaim{Claim: claim, Signatures: signatures},
	}
}

func (f *fixture) currentEpoch(t *testing.T) attestlend.Epoch {
	owner, err := f.ledger.Owner(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.admin, owner)

	epochs, err := f.ledger.Epochs(f.ctx)
	require.NoError(t, err)
	require.NotEmpty(t, epochs)
	return epochs[len(epochs)-1]
}

func TestUpdateCreditScore(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.ledger.AppendEpoch(f.ctx, f.borrower, witnessRoster(t, f, 3), 2)
	require.ErrorIs(t, err, attestlend.ErrUnauthorized)
	epoch, err := f.ledger.AppendEpoch(f.ctx, f.admin, witnessRoster(t, f, 3), 2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), epoch.ID)

	info := attestlend.ClaimInfo{
		Provider:   "http",
		Parameters: `{"url":"https://bureau.example/score"}`,
		Context:    `{"extractedParameters":{"CreditScore":"7,50"}}`,
	}

	score, err := f.ledger.UpdateCreditScore(f.ctx, f.borrower, f.attest(t, f.borrower, info))
	require.NoError(t, err)
	require.Equal(t, "750", score.Dec())

	stored, err := f.ledger.GetCreditScore(f.ctx, f.borrower)
	require.NoError(t, err)
	require.Equal(t, "750", stored.Dec())

	user, err := f.ledger.GetUser(f.ctx, f.borrower)
	require.NoError(t, err)
	require.True(t, user.IsVerified)

	// somebody else's claim cannot be replayed
	_, err = f.ledger.UpdateCreditScore(f.ctx, f.lender, f.attest(t, f.borrower, info))
	require.ErrorIs(t, err, attestlend.ErrUnauthorized)

	other := info
	other.Provider = "ftp"
	_, err = f.ledger.UpdateCreditScore(f.ctx, f.borrower, f.attest(t, f.borrower, other))
	require.ErrorIs(t, err, attestlend.ErrInvalidProvider)

	missing := info
	missing.Context = `{"extractedParameters":{"Income":"100"}}`
	_, err = f.ledger.UpdateCreditScore(f.ctx, f.borrower, f.attest(t, f.borrower, missing))
	require.ErrorIs(t, err, attestlend.ErrMissingField)

	tampered := f.attest(t, f.borrower, info)
	tampered.ClaimInfo.Context = `{"extractedParameters":{"CreditScore":"999"}}`
	_, err = f.ledger.UpdateCreditScore(f.ctx, f.borrower, tampered)
	require.ErrorIs(t, err, attestlend.ErrClaimInfoMismatch)

	stored, err = f.ledger.GetCreditScore(f.ctx, f.borrower)
	require.NoError(t, err)
	require.Equal(t, "750", stored.Dec())
}

func TestAddCredential(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ledger.AppendEpoch(f.ctx, f.admin, witnessRoster(t, f, 4), 3)
	require.NoError(t, err)

	info := attestlend.ClaimInfo{
		Provider:   "http",
		Parameters: `{"url":"https://social.example/me"}`,
		Context:    `{"extractedParameters":{"username":"ali\"ce","email":"alice@example.com"}}`,
	}

	_, err = f.ledger.AddCredential(f.ctx, f.borrower, f.attest(t, f.borrower, info), 1)
	require.ErrorIs(t, err, attestlend.ErrInvalidCredentialType)

	require.ErrorIs(t, f.ledger.SetCredentialType(f.ctx, f.borrower, 1, "username"), attestlend.ErrUnauthorized)
	require.NoError(t, f.ledger.SetCredentialType(f.ctx, f.admin, 1, "username"))

	value, err := f.ledger.AddCredential(f.ctx, f.borrower, f.attest(t, f.borrower, info), 1)
	require.NoError(t, err)
	require.Equal(t, `ali\"ce`, value)

	stored, err := f.ledger.GetCredential(f.ctx, f.borrower, 1)
	require.NoError(t, err)
	require.Equal(t, `ali\"ce`, stored)

	_, err = f.ledger.GetCredential(f.ctx, f.borrower, 2)
	require.True(t, domain.IsNotFound(err))

	require.NoError(t, f.ledger.SetCredentialType(f.ctx, f.admin, 2, "contact"))
	f.ledger.RegisterExtractor(2, attestlend.NewFieldExtractor("email"))
	value, err = f.ledger.AddCredential(f.ctx, f.borrower, f.attest(t, f.borrower, info), 2)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", value)

	require.NoError(t, f.ledger.SetProviderAllowed(f.ctx, f.admin, "http", false))
	_, err = f.ledger.AddCredential(f.ctx, f.borrower, f.attest(t, f.borrower, info), 1)
	require.ErrorIs(t, err, attestlend.ErrInvalidProvider)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t, nil)

	require.ErrorIs(t, f.ledger.TransferOwnership(f.ctx, f.borrower, f.borrower), attestlend.ErrUnauthorized)
	require.ErrorIs(t, f.ledger.TransferOwnership(f.ctx, f.admin, common.Address{}), attestlend.ErrUnauthorized)
	require.NoError(t, f.ledger.TransferOwnership(f.ctx, f.admin, f.lender))

	require.ErrorIs(t, f.ledger.Pause(f.ctx, f.admin), attestlend.ErrUnauthorized)
	require.NoError(t, f.ledger.Pause(f.ctx, f.lender))

	// a restart must not hand ownership back to the configured admin
	require.NoError(t, f.ledger.Unpause(f.ctx, f.lender))
	require.NoError(t, f.ledger.Initialize(f.ctx, f.admin, nil))
	owner, err := f.ledger.Owner(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.lender, owner)
}

func TestTokenBook(t *testing.T) {
	f := newFixture(t, nil)
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	require.ErrorIs(t, f.tokens.Mint(f.ctx, stranger, f.lending, stranger, uint256.NewInt(1)), attestlend.ErrUnauthorized)

	book := usecase.NewTokenBook(f.balances)
	require.NoError(t, f.tokens.Approve(f.ctx, f.lender, f.lending, stranger, uint256.NewInt(100)))

	err := book.TransferFrom(f.ctx, f.lending, stranger, f.lender, stranger, uint256.NewInt(101))
	require.ErrorIs(t, err, attestlend.ErrInsufficientFunds)

	require.NoError(t, book.TransferFrom(f.ctx, f.lending, stranger, f.lender, stranger, uint256.NewInt(60)))
	allowance, err := f.tokens.Allowance(f.ctx, f.lending, f.lender, stranger)
	require.NoError(t, err)
	require.Equal(t, uint64(40), allowance.Uint64())
	require.Equal(t, uint64(60), f.balance(t, f.lending, stranger))

	// unlimited allowances are not consumed
	require.NoError(t, book.TransferFrom(f.ctx, f.lending, f.escrow, f.lender, stranger, uint256.NewInt(10)))
	allowance, err = f.tokens.Allowance(f.ctx, f.lending, f.lender, f.escrow)
	require.NoError(t, err)
	require.True(t, allowance.Eq(new(uint256.Int).SetAllOne()))

	err = book.Transfer(f.ctx, f.lending, stranger, f.lender, uint256.NewInt(1000))
	require.ErrorIs(t, err, attestlend.ErrInsufficientFunds)
}
