package query

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	cat := memory.NewCatalog()
	cat.PutSession(domain.Session{ID: 4, Capacity: 10, StartsAt: now.Add(time.Hour), IsActive: true})

	svc := New(cat, memory.NewLedger(), clock)

	sess, err := svc.GetSession(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, sess.Capacity)

	_, err = svc.GetSession(ctx, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCheckPromoCode(t *testing.T) {
	ctx := context.Background()
	cat := memory.NewCatalog()

	for _, p := range []domain.PromoCode{
		{Code: "OPEN", DiscountPercent: 10, IsActive: true, StartsAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		{Code: "OFF", DiscountPercent: 10, IsActive: false, StartsAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		{Code: "LATE", DiscountPercent: 50, IsActive: true, StartsAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, cat.CreatePromoCode(ctx, p))
	}

	svc := New(cat, memory.NewLedger(), clock)

	tests := []struct {
		code  string
		valid bool
	}{
		{"OPEN", true},
		{"OFF", false},
		{"LATE", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := svc.CheckPromoCode(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.valid, got.Valid)
		})
	}

	_, err := svc.CheckPromoCode(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrPromoNotFound)
}

func TestListUserHoldsSkipsLapsed(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	sess := domain.Session{ID: 1, Capacity: 5, StartsAt: now.Add(time.Hour), PriceCents: 900, IsActive: true}

	for seat, at := range map[int]time.Time{
		1: now.Add(-20 * time.Minute),
		2: now.Add(-5 * time.Minute),
	} {
		h := domain.NewHold(sess, 3, seat, at)
		err := l.WithSeat(ctx, 1, seat, func(ctx context.Context, tx repository.SeatTx) error {
			return tx.InsertHold(ctx, &h)
		})
		require.NoError(t, err)
	}

	svc := New(memory.NewCatalog(), l, clock)

	holds, err := svc.ListUserHolds(ctx, 3)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, 2, holds[0].Seat)

	tickets, err := svc.ListUserTickets(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}
