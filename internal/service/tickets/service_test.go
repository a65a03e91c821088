package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, l *memory.Ledger, userID int64) domain.Ticket {
	t.Helper()

	tk := domain.Ticket{
		ID:          uuid.New(),
		SessionID:   1,
		Seat:        3,
		UserID:      userID,
		PriceCents:  1200,
		PurchasedAt: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
	}

	err := l.WithSeat(context.Background(), tk.SessionID, tk.Seat, func(ctx context.Context, tx repository.SeatTx) error {
		return tx.InsertTicket(ctx, &tk)
	})
	require.NoError(t, err)

	return tk
}

func TestGetTicket(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	tk := seed(t, l, 7)
	svc := New(l, nil)

	got, err := svc.GetTicket(ctx, tk.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	_, err = svc.GetTicket(ctx, tk.ID, 8)
	assert.ErrorIs(t, err, ErrTicketNotFound, "tickets of other users stay hidden")

	_, err = svc.GetTicket(ctx, uuid.New(), 7)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedeem(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	tk := seed(t, l, 7)

	at := time.Date(2026, 3, 1, 18, 55, 0, 0, time.UTC)
	svc := New(l, func() time.Time { return at })

	got, err := svc.Redeem(ctx, tk.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
	assert.True(t, got.UsedAt.Equal(at))

	_, err = svc.Redeem(ctx, tk.ID)
	assert.ErrorIs(t, err, ErrTicketAlreadyUsed)

	_, err = svc.Redeem(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTicketNotFound)
}
