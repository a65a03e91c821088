package httpgin

import (
	"context"
	"testing"

	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/stretchr/testify/assert"
)

func TestSeatHub(t *testing.T) {
	h := NewSeatHub()
	ctx := context.Background()

	a := h.subscribe(1)
	b := h.subscribe(2)

	h.Broadcast(ctx, redisrepo.SeatChange{SessionID: 1, Seat: 4})

	assert.Equal(t, 4, (<-a).Seat)
	assert.Empty(t, b, "other sessions are not notified")

	// a slow client drops messages instead of blocking
	for range cap(a) + 5 {
		h.Broadcast(ctx, redisrepo.SeatChange{SessionID: 1})
	}
	assert.Len(t, a, cap(a))

	h.unsubscribe(2, b)
	h.Close()

	for range cap(a) {
		<-a
	}
	_, open := <-a
	assert.False(t, open)
	assert.Empty(t, b, "unsubscribed channels are left alone")

	_, open = <-h.subscribe(1)
	assert.False(t, open, "subscribers after Close get a closed channel")
}
