package reservation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotBookable = errors.New("session is not bookable")
	ErrSeatOutOfRange     = errors.New("seat is out of range")
	ErrSeatUnavailable    = errors.New("seat is unavailable")
	ErrHoldNotFound       = errors.New("hold not found")
	ErrHoldExpired        = errors.New("hold is expired")
	ErrNotOwner           = errors.New("hold belongs to another user")
	ErrPromoInvalid       = errors.New("promo code is invalid")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// RateLimitError is ErrRateLimited with the wait reported by the limiter.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
