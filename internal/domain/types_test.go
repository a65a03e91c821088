package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestHoldLiveAndLapsed(t *testing.T) {
	s := Session{ID: 1, Capacity: 10, StartsAt: t0.Add(2 * time.Hour), PriceCents: 900, IsActive: true}
	h := NewHold(s, 7, 3, t0)

	assert.Equal(t, t0.Add(HoldDuration), h.ExpiresAt)
	assert.Equal(t, int64(900), h.PriceCents)

	tests := []struct {
		name       string
		hold       Hold
		now        time.Time
		wantLive   bool
		wantLapsed bool
	}{
		{name: "fresh", hold: h, now: t0.Add(time.Minute), wantLive: true},
		{name: "one nanosecond before expiry", hold: h, now: h.ExpiresAt.Add(-time.Nanosecond), wantLive: true},
		{name: "exactly at expiry", hold: h, now: h.ExpiresAt, wantLapsed: true},
		{name: "after expiry", hold: h, now: t0.Add(20 * time.Minute), wantLapsed: true},
		{name: "cancelled", hold: released(h, ReleaseCancelled), now: t0.Add(time.Minute)},
		{name: "converted", hold: released(h, ReleaseConverted), now: t0.Add(time.Minute)},
		{name: "swept", hold: released(h, ReleaseExpired), now: t0.Add(20 * time.Minute), wantLapsed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantLive, tt.hold.Live(tt.now))
			assert.Equal(t, tt.wantLapsed, tt.hold.Lapsed(tt.now))
		})
	}
}

func released(h Hold, reason ReleaseReason) Hold {
	h.Active = false
	h.ReleaseReason = reason
	return h
}

func TestSessionBookable(t *testing.T) {
	s := Session{StartsAt: t0, IsActive: true}

	assert.True(t, s.Bookable(t0.Add(-time.Second)))
	assert.False(t, s.Bookable(t0), "starting now is no longer bookable")
	assert.False(t, s.Bookable(t0.Add(time.Second)))

	s.IsActive = false
	assert.False(t, s.Bookable(t0.Add(-time.Hour)))
}

func TestSessionValidSeat(t *testing.T) {
	s := Session{Capacity: 5}

	for seat, want := range map[int]bool{-1: false, 0: false, 1: true, 5: true, 6: false} {
		assert.Equal(t, want, s.ValidSeat(seat), "seat %d", seat)
	}
}

func TestPromoCodeValid(t *testing.T) {
	p := PromoCode{Code: "SPRING", IsActive: true, StartsAt: t0, ExpiresAt: t0.Add(24 * time.Hour)}

	assert.False(t, p.Valid(t0.Add(-time.Second)))
	assert.True(t, p.Valid(t0))
	assert.True(t, p.Valid(t0.Add(time.Hour)))
	assert.False(t, p.Valid(t0.Add(24*time.Hour)))

	p.IsActive = false
	assert.False(t, p.Valid(t0.Add(time.Hour)))
}

func TestSeatMapAvailable(t *testing.T) {
	m := SeatMap{1: SeatAvailable, 2: SeatTaken, 3: SeatAvailable}
	assert.Equal(t, 2, m.Available())
}
