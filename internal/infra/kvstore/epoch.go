package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/attestlend"
)

const epochPrefix = "epoch:"

func epochKey(id uint32) string {
	return fmt.Sprintf("%s%010d", epochPrefix, id)
}

type EpochRepository struct {
	db *DB
}

func NewEpochRepository(db *DB) *EpochRepository {
	return &EpochRepository{db: db}
}

func (r *EpochRepository) Append(ctx context.Context, epoch attestlend.Epoch) error {
	return r.db.putJSON(ctx, epochKey(epoch.ID), epoch)
}

func (r *EpochRepository) SetEndTime(ctx context.Context, id uint32, endTime uint32) error {
	epoch, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	epoch.EndTime = endTime
	return r.db.putJSON(ctx, epochKey(id), epoch)
}

func (r *EpochRepository) Get(ctx context.Context, id uint32) (attestlend.Epoch, error) {
	var epoch attestlend.Epoch
	if err := r.db.getJSON(ctx, epochKey(id), &epoch); err != nil {
		return attestlend.Epoch{}, err
	}
	return epoch, nil
}

func (r *EpochRepository) Latest(ctx context.Context) (attestlend.Epoch, error) {
	data, err := r.db.last(ctx, epochPrefix)
	if err != nil {
		return attestlend.Epoch{}, err
	}
	var epoch attestlend.Epoch
	if err := json.Unmarshal(data, &epoch); err != nil {
		return attestlend.Epoch{}, errors.Wrap(err, "decode latest epoch")
	}
	return epoch, nil
}

func (r *EpochRepository) List(ctx context.Context) ([]attestlend.Epoch, error) {
	epochs := []attestlend.Epoch{}
	err := r.db.scan(ctx, epochPrefix, func(_, value []byte) error {
		var epoch attestlend.Epoch
		if err := json.Unmarshal(value, &epoch); err != nil {
			return errors.Wrap(err, "decode epoch")
		}
		epochs = append(epochs, epoch)
		return nil
	})
	return epochs, err
}
