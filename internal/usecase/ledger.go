package usecase

import (
	"context"
	"fmt"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

type LedgerConfig struct {
	// Escrow is the account that holds collateral and spends allowances.
	Escrow common.Address
	// LendingToken denominates principal and repayment. When zero the
	// loan's collateral token is used.
	LendingToken common.Address
	// CreditScoreField names the context field read by UpdateCreditScore.
	CreditScoreField string
}

// LedgerUsecase owns loans, offers and users.
type LedgerUsecase struct {
	seq      *Sequencer
	loans    LoanRepository
	users    UserRepository
	settings SettingsRepository
	tokens   TokenLedger
	epochs   *EpochUsecase
	verifier *VerifierUsecase
	config   LedgerConfig
	logger   *zap.Logger

	creditScore attestlend.Extractor
	extractors  map[uint64]attestlend.Extractor
}

func NewLedgerUsecase(
	seq *Sequencer,
	loans LoanRepository,
	users UserRepository,
	settings SettingsRepository,
	tokens TokenLedger,
	epochs *EpochUsecase,
	verifier *VerifierUsecase,
	config LedgerConfig,
	logger *zap.Logger,
) *LedgerUsecase {
	if config.CreditScoreField == "" {
		config.CreditScoreField = "CreditScore"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerUsecase{
		seq:         seq,
		loans:       loans,
		users:       users,
		settings:    settings,
		tokens:      tokens,
		epochs:      epochs,
		verifier:    verifier,
		config:      config,
		logger:      logger,
		creditScore: attestlend.NewFieldExtractor(config.CreditScoreField),
		extractors:  map[uint64]attestlend.Extractor{},
	}
}

type RequestLoanInput struct {
	Amount           *uint256.Int
	InterestRate     uint64
	Duration         uint64
	CollateralToken  common.Address
	CollateralAmount *uint256.Int
}

func (uc *LedgerUsecase) RequestLoan(ctx context.Context, borrower common.Address, input RequestLoanInput) (domain.Loan, error) {
	var loan domain.Loan
	err := uc.seq.Run(ctx, "Ledger.Usecase.RequestLoan", GatePaused, func(ctx context.Context, op *Operation) error {
		if input.Amount == nil || input.Amount.IsZero() {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "amount must be positive")
		}
		if input.CollateralAmount == nil || input.CollateralAmount.IsZero() {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "collateral must be positive")
		}
		if input.Duration == 0 {
			return errorsmod.Wrap(attestlend.ErrIncorrectAmount, "duration must be positive")
		}

		loan = domain.Loan{
			Borrower:         borrower,
			Amount:           new(uint256.Int).Set(input.Amount),
			InterestRate:     input.InterestRate,
			Duration:         input.Duration,
			CollateralToken:  input.CollateralToken,
			CollateralAmount: new(uint256.Int).Set(input.CollateralAmount),
			Status:           domain.LoanStatusRequested,
		}
		id, err := uc.loans.Create(ctx, loan)
		if err != nil {
			return err
		}
		loan.ID = id

		err = uc.tokens.TransferFrom(ctx, loan.CollateralToken, uc.config.Escrow, borrower, uc.config.Escrow, loan.CollateralAmount)
		if err != nil {
			return transferFailed(err, "escrow collateral")
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventLoanRequested,
			Ref:     id,
			Account: attestlend.AddressString(borrower),
			Value:   loan.Amount.Dec(),
		})
		return nil
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

func (uc *LedgerUsecase) CancelLoan(ctx context.Context, caller common.Address, loanID uint64) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.CancelLoan", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Borrower != caller {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "only the borrower can cancel")
		}
		if err := expectStatus(loan, domain.LoanStatusRequested); err != nil {
			return err
		}

		loan.Status = domain.LoanStatusCancelled
		if err := uc.loans.Update(ctx, loan); err != nil {
			return err
		}

		err = uc.tokens.Transfer(ctx, loan.CollateralToken, uc.config.Escrow, loan.Borrower, loan.CollateralAmount)
		if err != nil {
			return transferFailed(err, "return collateral")
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventLoanCancelled,
			Ref:     loan.ID,
			Account: attestlend.AddressString(caller),
		})
		return nil
	})
}

// PlaceOffer returns the index of the new offer.
func (uc *LedgerUsecase) PlaceOffer(ctx context.Context, lender common.Address, loanID uint64, interestRate uint64) (int, error) {
	var index int
	err := uc.seq.Run(ctx, "Ledger.Usecase.PlaceOffer", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := expectStatus(loan, domain.LoanStatusRequested); err != nil {
			return err
		}

		index, err = uc.loans.AddOffer(ctx, loanID, domain.Offer{
			Lender:       lender,
			InterestRate: interestRate,
		})
		if err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventOfferPlaced,
			Ref:     loanID,
			Account: attestlend.AddressString(lender),
			Value:   strconv.FormatUint(interestRate, 10),
		})
		return nil
	})
	return index, err
}

func (uc *LedgerUsecase) AcceptOffer(ctx context.Context, caller common.Address, loanID uint64, offerIndex int) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.AcceptOffer", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Borrower != caller {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "only the borrower can accept an offer")
		}
		if err := expectStatus(loan, domain.LoanStatusRequested); err != nil {
			return err
		}

		offers, err := uc.loans.Offers(ctx, loanID)
		if err != nil {
			return err
		}
		if offerIndex < 0 || offerIndex >= len(offers) {
			return errorsmod.Wrapf(attestlend.ErrInvalidOfferIndex, "loan %d has %d offers", loanID, len(offers))
		}
		offer := offers[offerIndex]

		loan.Lender = offer.Lender
		loan.InterestRate = offer.InterestRate
		loan.Status = domain.LoanStatusActive
		loan.StartTime = op.Now()
		if err := uc.loans.Update(ctx, loan); err != nil {
			return err
		}

		err = uc.tokens.TransferFrom(ctx, uc.principalToken(loan), uc.config.Escrow, loan.Lender, loan.Borrower, loan.Amount)
		if err != nil {
			return transferFailed(err, "fund principal")
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventOfferAccepted,
			Ref:     loanID,
			Account: attestlend.AddressString(loan.Lender),
			Value:   strconv.FormatUint(loan.InterestRate, 10),
		})
		return nil
	})
}

func (uc *LedgerUsecase) RepayLoan(ctx context.Context, caller common.Address, loanID uint64) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.RepayLoan", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Borrower != caller {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "only the borrower can repay")
		}
		if err := expectStatus(loan, domain.LoanStatusActive); err != nil {
			return err
		}

		repayment, err := loan.RepaymentAmount()
		if err != nil {
			return err
		}

		loan.Status = domain.LoanStatusRepaid
		if err := uc.loans.Update(ctx, loan); err != nil {
			return err
		}

		err = uc.tokens.TransferFrom(ctx, uc.principalToken(loan), uc.config.Escrow, loan.Borrower, loan.Lender, repayment)
		if err != nil {
			return transferFailed(err, "repay lender")
		}
		err = uc.tokens.Transfer(ctx, loan.CollateralToken, uc.config.Escrow, loan.Borrower, loan.CollateralAmount)
		if err != nil {
			return transferFailed(err, "release collateral")
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventLoanRepaid,
			Ref:     loanID,
			Account: attestlend.AddressString(caller),
			Value:   repayment.Dec(),
		})
		return nil
	})
}

func (uc *LedgerUsecase) LiquidateLoan(ctx context.Context, caller common.Address, loanID uint64) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.LiquidateLoan", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := expectStatus(loan, domain.LoanStatusActive); err != nil {
			return err
		}
		if !loan.PastDue(op.Now()) {
			return errorsmod.Wrapf(attestlend.ErrNotYetDue, "loan %d is due after %d", loanID, loan.DueAt())
		}

		loan.Status = domain.LoanStatusLiquidated
		if err := uc.loans.Update(ctx, loan); err != nil {
			return err
		}

		err = uc.tokens.Transfer(ctx, loan.CollateralToken, uc.config.Escrow, loan.Lender, loan.CollateralAmount)
		if err != nil {
			return transferFailed(err, "seize collateral")
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventLoanLiquidated,
			Ref:     loanID,
			Account: attestlend.AddressString(caller),
			Value:   loan.CollateralAmount.Dec(),
		})
		return nil
	})
}

func (uc *LedgerUsecase) ExtendLoanDuration(ctx context.Context, caller common.Address, loanID uint64, newDuration uint64) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.ExtendLoanDuration", GatePaused, func(ctx context.Context, op *Operation) error {
		loan, err := uc.loadLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Lender != caller {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "only the lender can extend")
		}
		if err := expectStatus(loan, domain.LoanStatusActive); err != nil {
			return err
		}
		if newDuration <= loan.Duration {
			return errorsmod.Wrapf(attestlend.ErrIncorrectAmount, "new duration %d does not exceed %d", newDuration, loan.Duration)
		}

		loan.Duration = newDuration
		if err := uc.loans.Update(ctx, loan); err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventLoanExtended,
			Ref:     loanID,
			Account: attestlend.AddressString(caller),
			Value:   strconv.FormatUint(newDuration, 10),
		})
		return nil
	})
}

func (uc *LedgerUsecase) GetLoan(ctx context.Context, loanID uint64) (domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Usecase.GetLoan")
	defer span.End()

	loan, err := uc.loadLoan(ctx, loanID)
	if err != nil {
		span.RecordError(err)
	}
	return loan, err
}

func (uc *LedgerUsecase) GetOffers(ctx context.Context, loanID uint64) ([]domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Usecase.GetOffers")
	defer span.End()

	if _, err := uc.loadLoan(ctx, loanID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return uc.loans.Offers(ctx, loanID)
}

func (uc *LedgerUsecase) CalculateRepaymentAmount(ctx context.Context, loanID uint64) (*uint256.Int, error) {
	loan, err := uc.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return loan.RepaymentAmount()
}

func (uc *LedgerUsecase) loadLoan(ctx context.Context, loanID uint64) (domain.Loan, error) {
	loan, err := uc.loans.Get(ctx, loanID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Loan{}, errorsmod.Wrapf(attestlend.ErrLoanNotFound, "loan %d", loanID)
		}
		return domain.Loan{}, err
	}
	return loan, nil
}

func (uc *LedgerUsecase) principalToken(loan domain.Loan) common.Address {
	if uc.config.LendingToken == (common.Address{}) {
		return loan.CollateralToken
	}
	return uc.config.LendingToken
}

func expectStatus(loan domain.Loan, status domain.LoanStatus) error {
	if loan.Status != status {
		return errorsmod.Wrapf(attestlend.ErrLoanNotInExpectedState, "loan %d is %s, expected %s", loan.ID, loan.Status, status)
	}
	return nil
}

// transferError reports ErrTokenTransferFailed on the wire while keeping the
// token ledger's own error reachable through errors.Is and errors.As.
type transferError struct {
	action string
	cause  error
}

func transferFailed(err error, action string) error {
	return &transferError{action: action, cause: err}
}

func (e *transferError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.action, attestlend.ErrTokenTransferFailed, e.cause)
}

// Cause is what errorsmod follows to find the ABCI code.
func (e *transferError) Cause() error {
	return attestlend.ErrTokenTransferFailed
}

func (e *transferError) Unwrap() []error {
	return []error{attestlend.ErrTokenTransferFailed, e.cause}
}
