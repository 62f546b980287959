package attestlend

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is reported alongside error codes on the wire.
const Codespace = "attestlend"

var (
	ErrNoSignatures           = errorsmod.Register(Codespace, 2, "no signatures")
	ErrInvalidSignature       = errorsmod.Register(Codespace, 3, "invalid signature")
	ErrClaimInfoMismatch      = errorsmod.Register(Codespace, 4, "claim info does not match identifier")
	ErrInsufficientWitnesses  = errorsmod.Register(Codespace, 5, "insufficient witnesses")
	ErrSignatureCountMismatch = errorsmod.Register(Codespace, 6, "signature count does not match committee size")
	ErrUnauthorizedSigner     = errorsmod.Register(Codespace, 7, "signer is not part of the committee")
	ErrEpochNotFound          = errorsmod.Register(Codespace, 8, "epoch not found")
	ErrInvalidProvider        = errorsmod.Register(Codespace, 9, "invalid provider")
	ErrInvalidCredentialType  = errorsmod.Register(Codespace, 10, "invalid credential type")
	ErrLoanNotFound           = errorsmod.Register(Codespace, 11, "loan not found")
	ErrLoanNotInExpectedState = errorsmod.Register(Codespace, 12, "loan not in expected state")
	ErrUnauthorized           = errorsmod.Register(Codespace, 13, "unauthorized")
	ErrIncorrectAmount        = errorsmod.Register(Codespace, 14, "incorrect amount")
	ErrNotYetDue              = errorsmod.Register(Codespace, 15, "loan not yet due")
	ErrPaused                 = errorsmod.Register(Codespace, 16, "ledger is paused")
	ErrTokenTransferFailed    = errorsmod.Register(Codespace, 17, "token transfer failed")
	ErrReentrantCall          = errorsmod.Register(Codespace, 18, "reentrant call")
	ErrInvalidOfferIndex      = errorsmod.Register(Codespace, 19, "invalid offer index")
	ErrMissingField           = errorsmod.Register(Codespace, 20, "claim context lacks field")
	ErrInsufficientFunds      = errorsmod.Register(Codespace, 21, "insufficient funds")
)
