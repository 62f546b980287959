package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
)

const EventChannel = "attestlend:events"

// SignalService relays committed ledger events over redis pub/sub.
type SignalService struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSignalService(redisClient *redis.Client, logger *zap.Logger) *SignalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalService{
		rdb:    redisClient,
		logger: logger,
	}
}

func (s *SignalService) Publish(ctx context.Context, event attestlend.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, EventChannel, jsonstr).Err()
	if err != nil {
		return errors.Wrap(err, "redis publish")
	}

	return nil
}

// Realtime forwards events whose type starts with one of the most recently
// received prefixes. An empty prefix list forwards nothing. It returns when
// ctx is done or input is closed.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- attestlend.Event) {
	pubsub := s.rdb.Subscribe(ctx, EventChannel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	var prefixes []string

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-input:
			if !ok {
				return
			}
			prefixes = next
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event attestlend.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			if !MatchPrefix(event.Type, prefixes) {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func MatchPrefix(eventType string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}
