package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/infra/database/models"
)

// EventRepository is an append-only index of committed events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Publish(ctx context.Context, event attestlend.Event) error {
	return r.db.WithContext(ctx).Create(&models.Event{
		Type:      event.Type,
		Ref:       event.Ref,
		Account:   event.Account,
		Value:     event.Value,
		Timestamp: event.Timestamp,
	}).Error
}

// Since returns events emitted at or after timestamp, oldest first.
func (r *EventRepository) Since(ctx context.Context, timestamp int64, limit int) ([]attestlend.Event, error) {
	var rows []models.Event
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", timestamp).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]attestlend.Event, len(rows))
	for i, row := range rows {
		events[i] = attestlend.Event{
			Type:      row.Type,
			Ref:       row.Ref,
			Account:   row.Account,
			Value:     row.Value,
			Timestamp: row.Timestamp,
		}
	}
	return events, nil
}
