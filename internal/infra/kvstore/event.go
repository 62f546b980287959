package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

const (
	eventPrefix      = "event:"
	eventSequenceKey = "seq:event"
)

// EventRepository is an append-only index of committed events.
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Publish(ctx context.Context, event attestlend.Event) error {
	return r.db.Atomic(ctx, func(ctx context.Context) error {
		var next uint64 = 1
		data, err := r.db.get(ctx, eventSequenceKey)
		switch {
		case err == nil:
			next = binary.BigEndian.Uint64(data) + 1
		case domain.IsNotFound(err):
		default:
			return err
		}

		seq := make([]byte, 8)
		binary.BigEndian.PutUint64(seq, next)
		if err := r.db.put(ctx, eventSequenceKey, seq); err != nil {
			return err
		}
		return r.db.putJSON(ctx, fmt.Sprintf("%s%020d", eventPrefix, next), event)
	})
}

// Since returns events emitted at or after timestamp, oldest first.
func (r *EventRepository) Since(ctx context.Context, timestamp int64, limit int) ([]attestlend.Event, error) {
	events := []attestlend.Event{}
	errLimit := errors.New("limit reached")
	err := r.db.scan(ctx, eventPrefix, func(_, value []byte) error {
		var event attestlend.Event
		if err := json.Unmarshal(value, &event); err != nil {
			return errors.Wrap(err, "decode event")
		}
		if event.Timestamp < timestamp {
			return nil
		}
		events = append(events, event)
		if limit > 0 && len(events) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}
	return events, nil
}
