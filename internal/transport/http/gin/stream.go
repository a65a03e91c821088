package httpgin

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
)

// SeatHub fans seat changes out to the SSE clients watching a session.
// Clients that fall behind lose messages instead of blocking the hub.
type SeatHub struct {
	mu     sync.RWMutex
	subs   map[int64]map[chan redisrepo.SeatChange]struct{}
	closed bool
}

func NewSeatHub() *SeatHub {
	return &SeatHub{subs: make(map[int64]map[chan redisrepo.SeatChange]struct{})}
}

// Broadcast matches the handler signature of SeatsPubSub.Subscribe.
func (h *SeatHub) Broadcast(_ context.Context, sc redisrepo.SeatChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[sc.SessionID] {
		select {
		case ch <- sc:
		default:
		}
	}
}

func (h *SeatHub) subscribe(sessionID int64) chan redisrepo.SeatChange {
	ch := make(chan redisrepo.SeatChange, 16)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch
	}

	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan redisrepo.SeatChange]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}

	return ch
}

func (h *SeatHub) unsubscribe(sessionID int64, ch chan redisrepo.SeatChange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sessionID], ch)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// Close ends every open stream. Later subscribers get a closed channel.
func (h *SeatHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for sessionID, chans := range h.subs {
		for ch := range chans {
			close(ch)
		}
		delete(h.subs, sessionID)
	}
}

// @Summary  Stream seat changes of a session (server-sent events)
// @Param    id  path  int  true  "Session ID"
// @Produce  text/event-stream
// @Success  200 {object} redisrepo.SeatChange
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id}/seats/stream [get]
func handleSeatStream(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.hub == nil {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "seat stream disabled"})
			return
		}

		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		if _, err := h.svcs.Query.GetSession(c.Request.Context(), sessionID); err != nil {
			respondErr(c, err)
			return
		}

		ch := h.hub.subscribe(sessionID)
		defer h.hub.unsubscribe(sessionID, ch)

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case sc, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("seat", sc)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", gin.H{"ts_unix": time.Now().Unix()})
				return true
			}
		})
	}
}
