package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/infra/database/models"
)

type EpochRepository struct {
	db *gorm.DB
}

func NewEpochRepository(db *gorm.DB) *EpochRepository {
	return &EpochRepository{db: db}
}

func (r *EpochRepository) Append(ctx context.Context, epoch attestlend.Epoch) error {
	witnesses := make([]models.EpochWitness, len(epoch.Witnesses))
	for i, witness := range epoch.Witnesses {
		witnesses[i] = models.EpochWitness{
			EpochID:  epoch.ID,
			Position: i,
			Address:  attestlend.AddressString(witness.Address),
			Host:     witness.Host,
		}
	}

	return conn(ctx, r.db).Create(&models.Epoch{
		ID:               epoch.ID,
		StartTime:        epoch.StartTime,
		EndTime:          epoch.EndTime,
		MinCommitteeSize: epoch.MinCommitteeSize,
		Witnesses:        witnesses,
	}).Error
}

func (r *EpochRepository) SetEndTime(ctx context.Context, id uint32, endTime uint32) error {
	result := conn(ctx, r.db).Model(&models.Epoch{}).Where("id = ?", id).Update("end_time", endTime)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "epoch")
	}
	return nil
}

func (r *EpochRepository) Get(ctx context.Context, id uint32) (attestlend.Epoch, error) {
	var epoch models.Epoch
	err := r.preload(ctx).Where("id = ?", id).Take(&epoch).Error
	if err != nil {
		return attestlend.Epoch{}, notFound(err, "epoch")
	}
	return toEpoch(epoch), nil
}

func (r *EpochRepository) Latest(ctx context.Context) (attestlend.Epoch, error) {
	var epoch models.Epoch
	err := r.preload(ctx).Order("id DESC").Take(&epoch).Error
	if err != nil {
		return attestlend.Epoch{}, notFound(err, "epoch")
	}
	return toEpoch(epoch), nil
}

func (r *EpochRepository) List(ctx context.Context) ([]attestlend.Epoch, error) {
	var rows []models.Epoch
	if err := r.preload(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	epochs := make([]attestlend.Epoch, len(rows))
	for i, row := range rows {
		epochs[i] = toEpoch(row)
	}
	return epochs, nil
}

func (r *EpochRepository) preload(ctx context.Context) *gorm.DB {
	return conn(ctx, r.db).Preload("Witnesses", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func toEpoch(row models.Epoch) attestlend.Epoch {
	witnesses := make([]attestlend.Witness, len(row.Witnesses))
	for i, witness := range row.Witnesses {
		witnesses[i] = attestlend.Witness{
			Address: common.HexToAddress(witness.Address),
			Host:    witness.Host,
		}
	}
	return attestlend.Epoch{
		ID:               row.ID,
		StartTime:        row.StartTime,
		EndTime:          row.EndTime,
		Witnesses:        witnesses,
		MinCommitteeSize: row.MinCommitteeSize,
	}
}
