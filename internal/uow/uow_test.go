package uow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLedger aborts the first failures units with a serialization error.
type flakyLedger struct {
	*memory.Ledger
	failures int
	calls    int
}

func (l *flakyLedger) WithSeat(
	ctx context.Context,
	sessionID int64,
	seat int,
	fn func(ctx context.Context, tx repository.SeatTx) error,
) error {
	l.calls++
	return l.Ledger.WithSeat(ctx, sessionID, seat, func(ctx context.Context, tx repository.SeatTx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if l.calls <= l.failures {
			return fmt.Errorf("commit: %w", repository.ErrSerialization)
		}
		return nil
	})
}

func fastConfig(attempts uint) Config {
	return Config{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestSeatRetriesSerializationFailures(t *testing.T) {
	l := &flakyLedger{Ledger: memory.NewLedger(), failures: 2}
	u := NewUoW(l, fastConfig(3))

	var ran []string
	err := u.Seat(context.Background(), 1, 1, func(ctx context.Context, tx repository.SeatTx, after func(AfterCommit)) error {
		after(func(context.Context) { ran = append(ran, "hook") })
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, l.calls)
	assert.Equal(t, []string{"hook"}, ran, "hooks of aborted attempts are dropped")
}

func TestSeatGivesUpAfterMaxAttempts(t *testing.T) {
	l := &flakyLedger{Ledger: memory.NewLedger(), failures: 10}
	u := NewUoW(l, fastConfig(3))

	hooked := false
	err := u.Seat(context.Background(), 1, 1, func(ctx context.Context, tx repository.SeatTx, after func(AfterCommit)) error {
		after(func(context.Context) { hooked = true })
		return nil
	})

	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, repository.ErrSerialization)
	assert.Equal(t, 3, l.calls)
	assert.False(t, hooked)
}

func TestSeatDoesNotRetryOtherErrors(t *testing.T) {
	l := &flakyLedger{Ledger: memory.NewLedger()}
	u := NewUoW(l, fastConfig(5))
	boom := errors.New("seat taken")

	err := u.Seat(context.Background(), 1, 1, func(ctx context.Context, tx repository.SeatTx, after func(AfterCommit)) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, l.calls)
}

func TestNewUoWDefaults(t *testing.T) {
	u := NewUoW(memory.NewLedger(), Config{InitialInterval: time.Second, MaxInterval: time.Millisecond})

	assert.Equal(t, uint(3), u.cfg.MaxAttempts)
	assert.Equal(t, time.Second, u.cfg.InitialInterval)
	assert.Equal(t, time.Second, u.cfg.MaxInterval)

	u = NewUoW(memory.NewLedger(), Config{})
	assert.Equal(t, 20*time.Millisecond, u.cfg.InitialInterval)
	assert.Equal(t, 250*time.Millisecond, u.cfg.MaxInterval)
}
