package usecase

import (
	"context"
	"encoding/hex"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/attestlend"
)

// VerifierUsecase accepts a proof only when it is signed by exactly the
// committee selected for its claim.
type VerifierUsecase struct {
	epochs *EpochUsecase
	cache  CommitteeCache
	zk     ZKVerifier
}

func NewVerifierUsecase(epochs *EpochUsecase, cache CommitteeCache, zk ZKVerifier) *VerifierUsecase {
	if zk == nil {
		zk = NoopZKVerifier{}
	}
	return &VerifierUsecase{
		epochs: epochs,
		cache:  cache,
		zk:     zk,
	}
}

// Committee returns the witnesses expected to sign a claim made in the
// given epoch. epochID 0 selects the current epoch.
func (uc *VerifierUsecase) Committee(ctx context.Context, epochID uint32, identifier common.Hash, timestampS uint32) ([]attestlend.Witness, error) {
	ctx, span := tracer.Start(ctx, "Verifier.Usecase.Committee")
	defer span.End()

	epoch, err := uc.epochs.Get(ctx, epochID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	key := committeeKey(epoch, identifier, timestampS)
	if uc.cache != nil {
		if committee, ok := uc.cache.Get(ctx, key); ok {
			return committee, nil
		}
	}

	committee, err := attestlend.SelectCommittee(epoch, identifier, timestampS)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if uc.cache != nil {
		uc.cache.Set(ctx, key, committee)
	}
	return committee, nil
}

func (uc *VerifierUsecase) Verify(ctx context.Context, proof attestlend.Proof) error {
	ctx, span := tracer.Start(ctx, "Verifier.Usecase.Verify")
	defer span.End()

	err := uc.verify(ctx, proof)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (uc *VerifierUsecase) verify(ctx context.Context, proof attestlend.Proof) error {
	signed := proof.SignedClaim
	if len(signed.Signatures) == 0 {
		return attestlend.ErrNoSignatures
	}

	if hashed := attestlend.HashClaimInfo(proof.ClaimInfo); hashed != signed.Claim.Identifier {
		return errorsmod.Wrapf(
			attestlend.ErrClaimInfoMismatch,
			"claim info hashes to %s, claim identifier is %s",
			hashed.Hex(), signed.Claim.Identifier.Hex(),
		)
	}

	expected, err := uc.Committee(ctx, signed.Claim.Epoch, signed.Claim.Identifier, signed.Claim.TimestampS)
	if err != nil {
		return err
	}

	actual, err := attestlend.RecoverAllSigners(signed)
	if err != nil {
		return err
	}

	if len(actual) != len(expected) {
		return errorsmod.Wrapf(
			attestlend.ErrSignatureCountMismatch,
			"got %d signatures, committee has %d members",
			len(actual), len(expected),
		)
	}

	members := make(map[common.Address]struct{}, len(expected))
	for _, witness := range expected {
		members[witness.Address] = struct{}{}
	}
	// duplicates are not rejected here: a member signing twice still passes
	for _, signer := range actual {
		if _, ok := members[signer]; !ok {
			return errorsmod.Wrapf(attestlend.ErrUnauthorizedSigner, "%s", attestlend.AddressString(signer))
		}
	}

	return uc.zk.VerifyZK(ctx, proof)
}

// committeeKey covers the roster too, so an epoch rewritten under the same
// id can never be served a stale selection.
func committeeKey(epoch attestlend.Epoch, identifier common.Hash, timestampS uint32) string {
	h := xxh3.New()
	h.Write(attestlend.CommitteeSeedInput(epoch, identifier, timestampS))
	for _, witness := range epoch.Witnesses {
		h.Write(witness.Address.Bytes())
	}
	sum := h.Sum128().Bytes()
	return "committee:" + hex.EncodeToString(sum[:])
}
