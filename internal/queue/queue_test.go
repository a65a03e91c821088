package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketPurchasedEvent(t *testing.T) {
	holdID := uuid.New()
	tk := domain.Ticket{
		ID:          uuid.New(),
		SessionID:   4,
		Seat:        9,
		UserID:      31,
		PriceCents:  1400,
		HoldID:      &holdID,
		PromoCode:   "SPRING",
		PurchasedAt: time.Date(2026, 3, 1, 20, 15, 0, 0, time.FixedZone("CET", 3600)),
	}

	ev := NewTicketPurchasedEvent(tk)

	assert.Equal(t, tk.ID.String(), ev.TicketID)
	assert.Equal(t, holdID.String(), ev.HoldID)
	assert.Equal(t, "2026-03-01T19:15:00Z", ev.PurchasedAt)

	tk.HoldID = nil
	b, err := json.Marshal(NewTicketPurchasedEvent(tk))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hold_id", "direct purchases carry no hold")
}

func TestAuditConsumerHandle(t *testing.T) {
	var buf bytes.Buffer
	c := NewAuditConsumer("amqp://unused", slog.New(slog.NewJSONHandler(&buf, nil)))

	body, err := json.Marshal(TicketPurchasedEvent{TicketID: "t-1", SessionID: 2, Seat: 3})
	require.NoError(t, err)

	require.NoError(t, c.handle(body))
	assert.Contains(t, buf.String(), `"ticket_id":"t-1"`)
	assert.Contains(t, buf.String(), `"component":"queue.audit"`)

	assert.Error(t, c.handle([]byte("{")))
	assert.Error(t, c.handle([]byte(`{"seat":3}`)))
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishTicketPurchased(context.Background(), domain.Ticket{}))
	assert.NoError(t, p.Close())
}
