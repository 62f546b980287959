package usecase

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

// RegisterExtractor overrides how values of a credential type are read
// from claim contexts. It must be called before the ledger serves requests.
func (uc *LedgerUsecase) RegisterExtractor(typeID uint64, extractor attestlend.Extractor) {
	uc.extractors[typeID] = extractor
}

func (uc *LedgerUsecase) extractorFor(credentialType domain.CredentialType) attestlend.Extractor {
	if extractor, ok := uc.extractors[credentialType.ID]; ok {
		return extractor
	}
	return attestlend.NewFieldExtractor(credentialType.Label)
}

// acceptProof verifies the proof and checks that it speaks about the caller
// and comes from an allowed provider.
func (uc *LedgerUsecase) acceptProof(ctx context.Context, caller common.Address, proof attestlend.Proof) error {
	if err := uc.verifier.Verify(ctx, proof); err != nil {
		return err
	}

	if owner := proof.SignedClaim.Claim.Owner; owner != caller {
		return errorsmod.Wrapf(attestlend.ErrUnauthorized, "claim belongs to %s", attestlend.AddressString(owner))
	}

	allowed, err := uc.settings.ProviderAllowed(ctx, proof.ClaimInfo.Provider)
	if err != nil {
		return err
	}
	if !allowed {
		return errorsmod.Wrapf(attestlend.ErrInvalidProvider, "%q", proof.ClaimInfo.Provider)
	}
	return nil
}

func (uc *LedgerUsecase) UpdateCreditScore(ctx context.Context, caller common.Address, proof attestlend.Proof) (*uint256.Int, error) {
	var score *uint256.Int
	err := uc.seq.Run(ctx, "Ledger.Usecase.UpdateCreditScore", GatePaused, func(ctx context.Context, op *Operation) error {
		if err := uc.acceptProof(ctx, caller, proof); err != nil {
			return err
		}

		raw := uc.creditScore.Extract(proof.ClaimInfo.Context)
		if raw == "" {
			return errorsmod.Wrapf(attestlend.ErrMissingField, "%s not present in claim context", uc.config.CreditScoreField)
		}

		var err error
		score, err = attestlend.ParseUintLenient(raw)
		if err != nil {
			return err
		}

		if err := uc.users.SetCreditScore(ctx, caller, score); err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventCreditScoreUpdated,
			Account: attestlend.AddressString(caller),
			Value:   score.Dec(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return score, nil
}

func (uc *LedgerUsecase) AddCredential(ctx context.Context, caller common.Address, proof attestlend.Proof, typeID uint64) (string, error) {
	var value string
	err := uc.seq.Run(ctx, "Ledger.Usecase.AddCredential", GatePaused, func(ctx context.Context, op *Operation) error {
		credentialType, err := uc.settings.CredentialType(ctx, typeID)
		if err != nil {
			if domain.IsNotFound(err) {
				return errorsmod.Wrapf(attestlend.ErrInvalidCredentialType, "type %d is not registered", typeID)
			}
			return err
		}

		if err := uc.acceptProof(ctx, caller, proof); err != nil {
			return err
		}

		value = uc.extractorFor(credentialType).Extract(proof.ClaimInfo.Context)
		if value == "" {
			return errorsmod.Wrapf(attestlend.ErrMissingField, "%s not present in claim context", credentialType.Label)
		}

		if err := uc.users.SetCredential(ctx, caller, typeID, value); err != nil {
			return err
		}

		op.Emit(attestlend.Event{
			Type:    attestlend.EventCredentialAdded,
			Ref:     typeID,
			Account: attestlend.AddressString(caller),
			Value:   value,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (uc *LedgerUsecase) GetUser(ctx context.Context, address common.Address) (domain.User, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Usecase.GetUser")
	defer span.End()

	return uc.users.Get(ctx, address)
}

func (uc *LedgerUsecase) GetCreditScore(ctx context.Context, address common.Address) (*uint256.Int, error) {
	user, err := uc.GetUser(ctx, address)
	if err != nil {
		return nil, err
	}
	return user.CreditScore, nil
}

func (uc *LedgerUsecase) GetCredential(ctx context.Context, address common.Address, typeID uint64) (string, error) {
	user, err := uc.GetUser(ctx, address)
	if err != nil {
		return "", err
	}
	value, ok := user.Credentials[typeID]
	if !ok {
		return "", domain.NewNotFound("credential")
	}
	return value, nil
}
