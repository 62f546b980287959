package usecase

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

const DefaultEpochDuration = 24 * time.Hour

// EpochUsecase is the epoch registry. Authorization and pausing are
// enforced by the callers that sequence it.
type EpochUsecase struct {
	repo     EpochRepository
	duration time.Duration
}

func NewEpochUsecase(repo EpochRepository, duration time.Duration) *EpochUsecase {
	if duration <= 0 {
		duration = DefaultEpochDuration
	}
	return &EpochUsecase{
		repo:     repo,
		duration: duration,
	}
}

// Append closes the current epoch at now and opens the next one.
func (uc *EpochUsecase) Append(ctx context.Context, now uint32, witnesses []attestlend.Witness, minCommitteeSize uint8) (attestlend.Epoch, error) {
	if len(witnesses) == 0 {
		return attestlend.Epoch{}, errorsmod.Wrap(attestlend.ErrInsufficientWitnesses, "roster is empty")
	}
	if minCommitteeSize == 0 {
		return attestlend.Epoch{}, errorsmod.Wrap(attestlend.ErrInsufficientWitnesses, "committee size must be at least 1")
	}

	id := uint32(1)
	latest, err := uc.repo.Latest(ctx)
	switch {
	case err == nil:
		if err := uc.repo.SetEndTime(ctx, latest.ID, now); err != nil {
			return attestlend.Epoch{}, err
		}
		id = latest.ID + 1
	case domain.IsNotFound(err):
	default:
		return attestlend.Epoch{}, err
	}

	roster := make([]attestlend.Witness, len(witnesses))
	copy(roster, witnesses)

	epoch := attestlend.Epoch{
		ID:               id,
		StartTime:        now,
		EndTime:          now + uint32(uc.duration/time.Second),
		Witnesses:        roster,
		MinCommitteeSize: minCommitteeSize,
	}
	if err := uc.repo.Append(ctx, epoch); err != nil {
		return attestlend.Epoch{}, err
	}
	return epoch, nil
}

// Get returns the epoch with the given id; 0 means the current one.
func (uc *EpochUsecase) Get(ctx context.Context, id uint32) (attestlend.Epoch, error) {
	var (
		epoch attestlend.Epoch
		err   error
	)
	if id == 0 {
		epoch, err = uc.repo.Latest(ctx)
	} else {
		epoch, err = uc.repo.Get(ctx, id)
	}
	if err != nil {
		if domain.IsNotFound(err) {
			return attestlend.Epoch{}, errorsmod.Wrapf(attestlend.ErrEpochNotFound, "epoch %d", id)
		}
		return attestlend.Epoch{}, err
	}
	return epoch, nil
}

func (uc *EpochUsecase) List(ctx context.Context) ([]attestlend.Epoch, error) {
	return uc.repo.List(ctx)
}
