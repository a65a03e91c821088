package domain

import (
	"time"

	"github.com/google/uuid"
)

// HoldDuration is how long a hold keeps its seat before it lapses.
const HoldDuration = 15 * time.Minute

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatTaken     SeatStatus = "taken"
)

// SeatMap maps every seat index of a session (1..capacity) to its status.
type SeatMap map[int]SeatStatus

// Available reports the number of available seats in the map.
func (m SeatMap) Available() int {
	n := 0
	for _, st := range m {
		if st == SeatAvailable {
			n++
		}
	}
	return n
}

type Hall struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type Movie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	DurationMin int    `json:"duration_min"`
}

// Session is one screening of a movie in a hall.
type Session struct {
	ID         int64     `json:"id"`
	MovieID    int64     `json:"movie_id"`
	HallID     int64     `json:"hall_id"`
	Capacity   int       `json:"capacity"`
	StartsAt   time.Time `json:"starts_at"`
	PriceCents int64     `json:"price_cents"`
	IsActive   bool      `json:"is_active"`
}

// Bookable reports whether new holds and direct purchases are accepted at now.
func (s Session) Bookable(now time.Time) bool {
	return s.IsActive && now.Before(s.StartsAt)
}

// ValidSeat reports whether seat lies in [1, capacity].
func (s Session) ValidSeat(seat int) bool {
	return seat >= 1 && seat <= s.Capacity
}

type ReleaseReason string

const (
	ReleaseCancelled ReleaseReason = "cancelled"
	ReleaseExpired   ReleaseReason = "expired"
	ReleaseConverted ReleaseReason = "converted"
)

// Hold is a temporary claim on a seat.
type Hold struct {
	ID            uuid.UUID     `json:"id"`
	SessionID     int64         `json:"session_id"`
	Seat          int           `json:"seat"`
	UserID        int64         `json:"user_id"`
	PriceCents    int64         `json:"price_cents"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Active        bool          `json:"active"`
	ReleasedAt    *time.Time    `json:"released_at,omitempty"`
	ReleaseReason ReleaseReason `json:"release_reason,omitempty"`
}

// Live reports whether the hold still occupies its seat at now.
func (h Hold) Live(now time.Time) bool {
	return h.Active && h.ExpiresAt.After(now)
}

// Lapsed reports whether the hold ended by running out of time, whether or
// not a sweep has already released it.
func (h Hold) Lapsed(now time.Time) bool {
	if h.Active {
		return !h.ExpiresAt.After(now)
	}
	return h.ReleaseReason == ReleaseExpired
}

// NewHold builds an active hold starting at now.
func NewHold(s Session, userID int64, seat int, now time.Time) Hold {
	return Hold{
		ID:         uuid.New(),
		SessionID:  s.ID,
		Seat:       seat,
		UserID:     userID,
		PriceCents: s.PriceCents,
		CreatedAt:  now,
		ExpiresAt:  now.Add(HoldDuration),
		Active:     true,
	}
}

// Ticket is a confirmed sale of one seat.
type Ticket struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   int64      `json:"session_id"`
	Seat        int        `json:"seat"`
	UserID      int64      `json:"user_id"`
	PriceCents  int64      `json:"price_cents"`
	HoldID      *uuid.UUID `json:"hold_id,omitempty"`
	PromoCode   string     `json:"promo_code,omitempty"`
	PurchasedAt time.Time  `json:"purchased_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

type PromoCode struct {
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	IsActive        bool      `json:"is_active"`
	StartsAt        time.Time `json:"starts_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Valid reports whether the code may be applied at now.
func (p PromoCode) Valid(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartsAt) && now.Before(p.ExpiresAt)
}
