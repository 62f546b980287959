package usecase

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

var tracer = otel.Tracer("usecase")

type inFlightKey struct{}

// Gate decides whether an operation honours the pause switch.
type Gate int

const (
	// GatePaused rejects the operation while the ledger is paused.
	GatePaused Gate = iota
	// GateAlways lets the operation through regardless. Only unpause uses it.
	GateAlways
)

// Operation is the per-call scratchpad handed to a sequenced function.
// All reads of the current time within one operation see the same instant.
type Operation struct {
	now    time.Time
	events []attestlend.Event
}

func (op *Operation) Now() uint64 {
	return uint64(op.now.Unix())
}

func (op *Operation) Emit(event attestlend.Event) {
	event.Timestamp = op.now.Unix()
	op.events = append(op.events, event)
}

// Sequencer puts every state mutating entry point on one timeline.
// Each operation holds the ledger lock, runs in a single storage
// transaction and publishes its events only after commit. A context that
// already carries an in-flight operation is rejected instead of waiting,
// which is what a token callback into the ledger would look like.
type Sequencer struct {
	mu       sync.Mutex
	tx       Transactor
	settings SettingsRepository
	events   EventPublisher
	clock    Clock
	logger   *zap.Logger
}

func NewSequencer(
	tx Transactor,
	settings SettingsRepository,
	events EventPublisher,
	clock Clock,
	logger *zap.Logger,
) *Sequencer {
	if events == nil {
		events = nopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		tx:       tx,
		settings: settings,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Sequencer) Run(ctx context.Context, name string, gate Gate, fn func(ctx context.Context, op *Operation) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if inflight, ok := ctx.Value(inFlightKey{}).(string); ok {
		err := errorsmod.Wrapf(attestlend.ErrReentrantCall, "%s called while %s is in flight", name, inflight)
		span.RecordError(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	op := &Operation{now: s.clock.Now()}
	ctx = context.WithValue(ctx, inFlightKey{}, name)

	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		if gate == GatePaused {
			paused, err := s.settings.Paused(ctx)
			if err != nil {
				return err
			}
			if paused {
				return errorsmod.Wrapf(attestlend.ErrPaused, "%s rejected", name)
			}
		}
		return fn(ctx, op)
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Info("operation rejected", zap.String("operation", name), zap.Error(err))
		return err
	}

	span.SetAttributes(attribute.Int("events", len(op.events)))
	for _, event := range op.events {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn(
				"failed to publish event",
				zap.String("operation", name),
				zap.String("event", event.Type),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RequireOwner must be called inside Run so the check and the mutation
// share a transaction.
func (s *Sequencer) RequireOwner(ctx context.Context, caller common.Address) error {
	owner, err := s.settings.Owner(ctx)
	if err != nil {
		if domain.IsNotFound(err) {
			return errorsmod.Wrap(attestlend.ErrUnauthorized, "no administrator configured")
		}
		return err
	}
	if caller != owner {
		return errorsmod.Wrapf(attestlend.ErrUnauthorized, "%s is not the administrator", attestlend.AddressString(caller))
	}
	return nil
}

func (s *Sequencer) Now() time.Time {
	return s.clock.Now()
}
