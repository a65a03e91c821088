package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0      = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	session = domain.Session{ID: 1, Capacity: 10, StartsAt: t0.Add(3 * time.Hour), PriceCents: 1200, IsActive: true}
)

func hold(t *testing.T, l *Ledger, userID int64, seat int, at time.Time) domain.Hold {
	t.Helper()

	h := domain.NewHold(session, userID, seat, at)
	require.NoError(t, l.WithSeat(context.Background(), session.ID, seat, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.InsertHold(ctx, &h)
	}))
	return h
}

func TestLedgerWithSeatRollsBackOnError(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	boom := errors.New("boom")

	err := l.WithSeat(ctx, session.ID, 4, func(ctx context.Context, tx repository.SeatTx) error {
		h := domain.NewHold(session, 1, 4, t0)
		require.NoError(t, tx.InsertHold(ctx, &h))
		return boom
	})
	require.ErrorIs(t, err, boom)

	occupied, err := l.Occupied(ctx, session.ID, t0)
	require.NoError(t, err)
	assert.Empty(t, occupied)
}

func TestLedgerOccupied(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	hold(t, l, 1, 2, t0)
	hold(t, l, 2, 7, t0.Add(-20*time.Minute)) // lapsed

	require.NoError(t, l.WithSeat(ctx, session.ID, 5, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.InsertTicket(ctx, &domain.Ticket{ID: uuid.New(), SessionID: session.ID, Seat: 5, UserID: 3, PurchasedAt: t0})
	}))

	// Another session on the same seat index is independent.
	other := session
	other.ID = 2
	h := domain.NewHold(other, 9, 2, t0)
	require.NoError(t, l.WithSeat(ctx, other.ID, 2, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.InsertHold(ctx, &h)
	}))

	occupied, err := l.Occupied(ctx, session.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, occupied)
}

func TestSlotTxConstraints(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	first := hold(t, l, 1, 3, t0)

	err := l.WithSeat(ctx, session.ID, 3, func(ctx context.Context, tx repository.SeatTx) error {
		h := domain.NewHold(session, 2, 3, t0)
		return tx.InsertHold(ctx, &h)
	})
	assert.ErrorIs(t, err, repository.ErrConflict, "second active hold")

	err = l.WithSeat(ctx, session.ID, 3, func(ctx context.Context, tx repository.SeatTx) error {
		if err := tx.ReleaseHold(ctx, first.ID, domain.ReleaseCancelled, t0); err != nil {
			return err
		}
		return tx.ReleaseHold(ctx, first.ID, domain.ReleaseCancelled, t0)
	})
	assert.ErrorIs(t, err, repository.ErrNotFound, "releasing an inactive hold")

	err = l.WithSeat(ctx, session.ID, 3, func(ctx context.Context, tx repository.SeatTx) error {
		tk := domain.Ticket{ID: uuid.New(), SessionID: session.ID, Seat: 3, UserID: 1}
		if err := tx.InsertTicket(ctx, &tk); err != nil {
			return err
		}
		tk.ID = uuid.New()
		return tx.InsertTicket(ctx, &tk)
	})
	assert.ErrorIs(t, err, repository.ErrConflict, "second ticket")
}

func TestSlotTxLatestHold(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	older := hold(t, l, 1, 6, t0)
	require.NoError(t, l.WithSeat(ctx, session.ID, 6, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.ReleaseHold(ctx, older.ID, domain.ReleaseCancelled, t0.Add(time.Minute))
	}))
	newer := hold(t, l, 1, 6, t0.Add(2*time.Minute))

	require.NoError(t, l.WithSeat(ctx, session.ID, 6, func(ctx context.Context, tx repository.SeatTx) error {
		got, err := tx.LatestHold(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)

		_, err = tx.LatestHold(ctx, 2)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	}))
}

func TestLedgerExpireHolds(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	hold(t, l, 1, 1, t0)
	hold(t, l, 2, 2, t0.Add(10*time.Minute))

	other := session
	other.ID = 2
	h := domain.NewHold(other, 3, 1, t0)
	require.NoError(t, l.WithSeat(ctx, other.ID, 1, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.InsertHold(ctx, &h)
	}))

	now := t0.Add(domain.HoldDuration)

	sid := session.ID
	n, err := l.ExpireHolds(ctx, &sid, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.ExpireHolds(ctx, nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only session 2 is left to sweep")

	n, err = l.ExpireHolds(ctx, nil, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedgerUserViews(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	hold(t, l, 1, 1, t0.Add(5*time.Minute))
	hold(t, l, 1, 2, t0)
	hold(t, l, 1, 3, t0.Add(-30*time.Minute)) // lapsed
	hold(t, l, 2, 4, t0)

	holds, err := l.LiveHoldsByUser(ctx, 1, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, 2, holds[0].Seat)
	assert.Equal(t, 1, holds[1].Seat)

	for i, at := range []time.Time{t0, t0.Add(time.Hour)} {
		seat := 8 + i
		require.NoError(t, l.WithSeat(ctx, session.ID, seat, func(ctx context.Context, tx repository.SeatTx) error {
			return tx.InsertTicket(ctx, &domain.Ticket{ID: uuid.New(), SessionID: session.ID, Seat: seat, UserID: 5, PurchasedAt: at})
		}))
	}

	tickets, err := l.TicketsByUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, 9, tickets[0].Seat, "newest first")

	used, err := l.MarkTicketUsed(ctx, tickets[1].ID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, used.UsedAt)

	_, err = l.MarkTicketUsed(ctx, tickets[1].ID, t0.Add(3*time.Hour))
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = l.MarkTicketUsed(ctx, uuid.New(), t0)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := l.GetTicket(ctx, tickets[1].ID)
	require.NoError(t, err)
	assert.Equal(t, used.UsedAt, got.UsedAt)
}

func TestLedgerConcurrentInsertsOnOneSeat(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	const n = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := range n {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			err := l.WithSeat(ctx, session.ID, 1, func(ctx context.Context, tx repository.SeatTx) error {
				if _, err := tx.ActiveHold(ctx); err == nil {
					return repository.ErrConflict
				}
				h := domain.NewHold(session, userID, 1, t0)
				return tx.InsertHold(ctx, &h)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i + 1))
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}
