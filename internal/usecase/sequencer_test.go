package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

type mockTransactor struct {
	committed  int
	rolledBack int
}

func (m *mockTransactor) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rolledBack++
		return err
	}
	m.committed++
	return nil
}

// mockSettings only backs the owner and the pause switch.
type mockSettings struct {
	SettingsRepository
	owner  common.Address
	paused bool
}

func (m *mockSettings) Owner(ctx context.Context) (common.Address, error) {
	if m.owner == (common.Address{}) {
		return common.Address{}, domain.NewNotFound("owner")
	}
	return m.owner, nil
}

func (m *mockSettings) Paused(ctx context.Context) (bool, error) {
	return m.paused, nil
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, event attestlend.Event) error {
	p.calls++
	return errors.New("redis is down")
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestSequencerPublishesAfterCommit(t *testing.T) {
	tx := &mockTransactor{}
	publisher := &failingPublisher{}
	core, logs := observer.New(zap.WarnLevel)
	seq := NewSequencer(tx, &mockSettings{}, publisher, fixedClock(time.Unix(1000, 0)), zap.New(core))

	err := seq.Run(context.Background(), "test", GatePaused, func(ctx context.Context, op *Operation) error {
		require.Equal(t, uint64(1000), op.Now())
		op.Emit(attestlend.Event{Type: attestlend.EventLoanRequested})
		op.Emit(attestlend.Event{Type: attestlend.EventOfferPlaced})
		require.Equal(t, 0, publisher.calls)
		return nil
	})
	require.NoError(t, err, "publication failures must not fail the operation")
	require.Equal(t, 1, tx.committed)
	require.Equal(t, 2, publisher.calls)
	require.Equal(t, 2, logs.FilterMessage("failed to publish event").Len())
}

func TestSequencerDropsEventsOnFailure(t *testing.T) {
	tx := &mockTransactor{}
	publisher := &failingPublisher{}
	seq := NewSequencer(tx, &mockSettings{}, publisher, nil, nil)

	boom := errors.New("boom")
	err := seq.Run(context.Background(), "test", GatePaused, func(ctx context.Context, op *Operation) error {
		op.Emit(attestlend.Event{Type: attestlend.EventLoanRequested})
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, tx.rolledBack)
	require.Equal(t, 0, publisher.calls)
}

func TestSequencerRejectsReentry(t *testing.T) {
	seq := NewSequencer(&mockTransactor{}, &mockSettings{}, nil, nil, nil)

	var inner error
	err := seq.Run(context.Background(), "outer", GatePaused, func(ctx context.Context, op *Operation) error {
		inner = seq.Run(ctx, "inner", GatePaused, func(ctx context.Context, op *Operation) error {
			t.Fatal("nested operation must not run")
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, inner, attestlend.ErrReentrantCall)

	// a fresh context after the outer call returned is fine
	require.NoError(t, seq.Run(context.Background(), "after", GatePaused, func(ctx context.Context, op *Operation) error {
		return nil
	}))
}

func TestSequencerPauseGate(t *testing.T) {
	settings := &mockSettings{paused: true}
	seq := NewSequencer(&mockTransactor{}, settings, nil, nil, nil)

	ran := false
	err := seq.Run(context.Background(), "paused", GatePaused, func(ctx context.Context, op *Operation) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, attestlend.ErrPaused)
	require.False(t, ran)

	err = seq.Run(context.Background(), "unpause", GateAlways, func(ctx context.Context, op *Operation) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestSequencerRequireOwner(t *testing.T) {
	ctx := context.Background()
	settings := &mockSettings{}
	seq := NewSequencer(&mockTransactor{}, settings, nil, nil, nil)
	admin := common.HexToAddress("0xad")

	require.ErrorIs(t, seq.RequireOwner(ctx, admin), attestlend.ErrUnauthorized)

	settings.owner = admin
	require.NoError(t, seq.RequireOwner(ctx, admin))
	require.ErrorIs(t, seq.RequireOwner(ctx, common.HexToAddress("0xbe")), attestlend.ErrUnauthorized)
}
