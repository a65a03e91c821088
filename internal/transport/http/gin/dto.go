package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
)

type PlaceHoldRequest struct {
	Seat int `json:"seat" binding:"required"`
}

type PurchaseRequest struct {
	Seat      int    `json:"seat" binding:"required"`
	PromoCode string `json:"promo_code"`
}

type CreateHallRequest struct {
	Name     string `json:"name" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,gt=0"`
}

type CreateMovieRequest struct {
	Title       string `json:"title" binding:"required"`
	DurationMin int    `json:"duration_min" binding:"required,gt=0"`
}

type CreateSessionRequest struct {
	MovieID    int64  `json:"movie_id" binding:"required"`
	HallID     int64  `json:"hall_id" binding:"required"`
	StartsAt   string `json:"starts_at" binding:"required"`
	PriceCents int64  `json:"price_cents" binding:"gte=0"`
}

type UpdateSessionRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type CreatePromoCodeRequest struct {
	Code            string `json:"code" binding:"required"`
	DiscountPercent int    `json:"discount_percent" binding:"gte=0,lte=100"`
	IsActive        *bool  `json:"is_active"`
	StartsAt        string `json:"starts_at" binding:"required"`
	ExpiresAt       string `json:"expires_at" binding:"required"`
}

type SweepRequest struct {
	SessionID *int64 `json:"session_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SeatMapResponse struct {
	SessionID int64                     `json:"session_id"`
	Capacity  int                       `json:"capacity"`
	Available int                       `json:"available"`
	Seats     map[int]domain.SeatStatus `json:"seats"`
}

type HoldResponse struct {
	HoldID     string    `json:"hold_id"`
	SessionID  int64     `json:"session_id"`
	Seat       int       `json:"seat"`
	PriceCents int64     `json:"price_cents"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type TicketResponse struct {
	TicketID   string     `json:"ticket_id"`
	SessionID  int64      `json:"session_id"`
	Seat       int        `json:"seat"`
	PriceCents int64      `json:"price_cents"`
	HoldID     string     `json:"hold_id,omitempty"`
	PromoCode  string     `json:"promo_code,omitempty"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

type SweepResponse struct {
	Released int64 `json:"released"`
}

func newHoldResponse(h *domain.Hold) HoldResponse {
	return HoldResponse{
		HoldID:     h.ID.String(),
		SessionID:  h.SessionID,
		Seat:       h.Seat,
		PriceCents: h.PriceCents,
		ExpiresAt:  h.ExpiresAt,
	}
}

func newTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		TicketID:   t.ID.String(),
		SessionID:  t.SessionID,
		Seat:       t.Seat,
		PriceCents: t.PriceCents,
		PromoCode:  t.PromoCode,
		UsedAt:     t.UsedAt,
	}
	if t.HoldID != nil {
		resp.HoldID = t.HoldID.String()
	}
	return resp
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
