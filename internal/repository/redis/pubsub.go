package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SeatChange is the message fanned out when a seat changes state.
type SeatChange struct {
	Type      string            `json:"type"`
	SessionID int64             `json:"session_id"`
	Seat      int               `json:"seat"`
	Status    domain.SeatStatus `json:"status"`
	TsUnix    int64             `json:"ts_unix"`
}

type SeatsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSeatsPubSub(rdb *redis.Client) *SeatsPubSub {
	return &SeatsPubSub{
		rdb:     rdb,
		channel: ChannelSeatsChanged(),
	}
}

func (p *SeatsPubSub) PublishSeatChanged(
	ctx context.Context,
	sessionID int64,
	seat int,
	status domain.SeatStatus,
) error {
	if p == nil {
		return nil
	}

	msg := SeatChange{
		Type:      "seat_changed",
		SessionID: sessionID,
		Seat:      seat,
		Status:    status,
		TsUnix:    time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers seat changes to handler until ctx is done.
func (p *SeatsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ch SeatChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var sc SeatChange
			if err := json.Unmarshal([]byte(m.Payload), &sc); err == nil &&
				sc.SessionID != 0 {
				handler(ctx, sc)
			}
		}
	}
}
