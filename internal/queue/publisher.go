package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends ticket events. It dials lazily and redials after a failed
// publish. A nil *Publisher drops every event.
type Publisher struct {
	url string
	log *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{url: url, log: log.With("component", "queue.publisher")}
}

// PublishTicketPurchased publishes t as a persistent TicketPurchasedEvent.
func (p *Publisher) PublishTicketPurchased(ctx context.Context, t domain.Ticket) error {
	const op = "queue.Publisher.PublishTicketPurchased"

	if p == nil {
		return nil
	}

	body, err := json.Marshal(NewTicketPurchasedEvent(t))
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		QueueTicketPurchased, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    t.ID.String(),
			Body:         body,
		},
	); err != nil {
		p.reset()
		return fmt.Errorf("%s: publish: %w", op, err)
	}

	return nil
}

// channel returns the open channel, dialing if needed. Callers hold mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if err := declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker")

	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
	return nil
}

func declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		QueueTicketPurchased,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
