package usecase

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

// Initialize records the administrator on first start and allow-lists the
// configured providers. An administrator already on record is kept. A paused
// ledger keeps its allow-list untouched until it is unpaused and restarted.
func (uc *LedgerUsecase) Initialize(ctx context.Context, owner common.Address, providers []string) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.Initialize", GateAlways, func(ctx context.Context, op *Operation) error {
		_, err := uc.settings.Owner(ctx)
		switch {
		case err == nil:
		case domain.IsNotFound(err):
			if owner == (common.Address{}) {
				return errorsmod.Wrap(attestlend.ErrUnauthorized, "administrator address is required")
			}
			if err := uc.settings.SetOwner(ctx, owner); err != nil {
				return err
			}
			uc.logger.Info("administrator recorded", zap.String("owner", attestlend.AddressString(owner)))
			op.Emit(attestlend.Event{
				Type:    attestlend.EventOwnershipChanged,
				Account: attestlend.AddressString(owner),
			})
		default:
			return err
		}

		paused, err := uc.settings.Paused(ctx)
		if err != nil {
			return err
		}
		if paused {
			uc.logger.Warn("ledger is paused, configured providers not applied", zap.Strings("providers", providers))
			return nil
		}

		for _, provider := range providers {
			if err := uc.settings.SetProviderAllowed(ctx, provider, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (uc *LedgerUsecase) AppendEpoch(ctx context.Context, caller common.Address, witnesses []attestlend.Witness, minCommitteeSize uint8) (attestlend.Epoch, error) {
	var epoch attestlend.Epoch
	err := uc.seq.Run(ctx, "Ledger.Usecase.AppendEpoch", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}

		var err error
		epoch, err = uc.epochs.Append(ctx, uint32(op.Now()), witnesses, minCommitteeSize)
		if err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventEpochAdded,
			Ref:     uint64(epoch.ID),
			Account: attestlend.AddressString(caller),
			Value:   strconv.Itoa(len(epoch.Witnesses)),
		})
		return nil
	})
	if err != nil {
		return attestlend.Epoch{}, err
	}
	return epoch, nil
}

func (uc *LedgerUsecase) SetCredentialType(ctx context.Context, caller common.Address, id uint64, label string) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.SetCredentialType", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if label == "" {
			return errorsmod.Wrap(attestlend.ErrInvalidCredentialType, "label must not be empty")
		}

		err := uc.settings.SetCredentialType(ctx, domain.CredentialType{ID: id, Label: label})
		if err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:  attestlend.EventCredentialTypeSet,
			Ref:   id,
			Value: label,
		})
		return nil
	})
}

func (uc *LedgerUsecase) SetProviderAllowed(ctx context.Context, caller common.Address, provider string, allowed bool) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.SetProviderAllowed", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if provider == "" {
			return errorsmod.Wrap(attestlend.ErrInvalidProvider, "provider must not be empty")
		}

		if err := uc.settings.SetProviderAllowed(ctx, provider, allowed); err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventProviderSet,
			Account: provider,
			Value:   strconv.FormatBool(allowed),
		})
		return nil
	})
}

func (uc *LedgerUsecase) Pause(ctx context.Context, caller common.Address) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.Pause", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if err := uc.settings.SetPaused(ctx, true); err != nil {
			return err
		}
		op.Emit(attestlend.Event{Type: attestlend.EventPaused, Account: attestlend.AddressString(caller)})
		return nil
	})
}

func (uc *LedgerUsecase) Unpause(ctx context.Context, caller common.Address) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.Unpause", GateAlways, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if err := uc.settings.SetPaused(ctx, false); err != nil {
			return err
		}
		op.Emit(attestlend.Event{Type: attestlend.EventUnpaused, Account: attestlend.AddressString(caller)})
		return nil
	})
}

func (uc *LedgerUsecase) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return uc.seq.Run(ctx, "Ledger.Usecase.TransferOwnership", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.seq.RequireOwner(ctx, caller); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "cannot hand ownership to the zero address")
		}
		if err := uc.settings.SetOwner(ctx, newOwner); err != nil {
			return err
		}
		op.Emit(attestlend.Event{
			Type:    attestlend.EventOwnershipChanged,
			Account: attestlend.AddressString(newOwner),
		})
		return nil
	})
}

func (uc *LedgerUsecase) Owner(ctx context.Context) (common.Address, error) {
	return uc.settings.Owner(ctx)
}

func (uc *LedgerUsecase) Paused(ctx context.Context) (bool, error) {
	return uc.settings.Paused(ctx)
}

func (uc *LedgerUsecase) Epochs(ctx context.Context) ([]attestlend.Epoch, error) {
	return uc.epochs.List(ctx)
}

// Epoch returns the epoch with the given id; 0 means the current one.
func (uc *LedgerUsecase) Epoch(ctx context.Context, id uint32) (attestlend.Epoch, error) {
	return uc.epochs.Get(ctx, id)
}

func (uc *LedgerUsecase) Committee(ctx context.Context, epochID uint32, identifier common.Hash, timestampS uint32) ([]attestlend.Witness, error) {
	return uc.verifier.Committee(ctx, epochID, identifier, timestampS)
}
