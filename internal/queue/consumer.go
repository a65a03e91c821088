package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer writes one structured log record per sold ticket. It keeps
// reconnecting with exponential backoff until its context is done.
type AuditConsumer struct {
	url string
	log *slog.Logger
}

func NewAuditConsumer(url string, log *slog.Logger) *AuditConsumer {
	if log == nil {
		log = slog.Default()
	}

	return &AuditConsumer{url: url, log: log.With("component", "queue.audit")}
}

// Run consumes until ctx is done. It returns nil on shutdown.
func (c *AuditConsumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	for {
		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.log.Warn("consumer stopped, reconnecting",
			slog.Any("error", err),
			slog.Duration("retry_in", wait),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context) (bool, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", slog.Any("error", err))
	}

	if err := declare(ch); err != nil {
		return false, err
	}

	msgs, err := ch.Consume(QueueTicketPurchased, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info("consuming", slog.String("queue", QueueTicketPurchased))

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case d, ok := <-msgs:
			if !ok {
				return true, errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.log.Error("handle message failed", slog.Any("error", err))
				// Reject without requeue to avoid a tight redelivery loop.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AuditConsumer) handle(body []byte) error {
	var ev TicketPurchasedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if ev.TicketID == "" {
		return errors.New("event without ticket_id")
	}

	c.log.Info("ticket purchased",
		slog.String("ticket_id", ev.TicketID),
		slog.Int64("session_id", ev.SessionID),
		slog.Int("seat", ev.Seat),
		slog.Int64("user_id", ev.UserID),
		slog.Int64("price_cents", ev.PriceCents),
		slog.String("hold_id", ev.HoldID),
		slog.String("promo_code", ev.PromoCode),
		slog.String("purchased_at", ev.PurchasedAt),
	)

	return nil
}
