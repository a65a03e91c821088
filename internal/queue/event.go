// Package queue carries ticket events over RabbitMQ.
package queue

import (
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// QueueTicketPurchased is the durable queue every sold ticket is announced on.
const QueueTicketPurchased = "ticket.purchased"

// TicketPurchasedEvent is published once per committed sale.
type TicketPurchasedEvent struct {
	TicketID    string `json:"ticket_id"`
	SessionID   int64  `json:"session_id"`
	Seat        int    `json:"seat"`
	UserID      int64  `json:"user_id"`
	PriceCents  int64  `json:"price_cents"`
	HoldID      string `json:"hold_id,omitempty"`
	PromoCode   string `json:"promo_code,omitempty"`
	PurchasedAt string `json:"purchased_at"`
}

func NewTicketPurchasedEvent(t domain.Ticket) TicketPurchasedEvent {
	ev := TicketPurchasedEvent{
		TicketID:    t.ID.String(),
		SessionID:   t.SessionID,
		Seat:        t.Seat,
		UserID:      t.UserID,
		PriceCents:  t.PriceCents,
		PromoCode:   t.PromoCode,
		PurchasedAt: t.PurchasedAt.UTC().Format(time.RFC3339),
	}
	if t.HoldID != nil {
		ev.HoldID = t.HoldID.String()
	}
	return ev
}
