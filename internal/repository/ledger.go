package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// Ledger is the durable record of tickets and holds.
type Ledger interface {
	// Occupied returns the seats of a session that carry a ticket or a hold
	// that is live at now. The result is read from a single snapshot.
	Occupied(ctx context.Context, sessionID int64, now time.Time) ([]int, error)

	// WithSeat runs fn as one atomic unit serialized against every other unit
	// on the same (session, seat). Units on other seats are not blocked. If fn
	// returns an error nothing it wrote is kept.
	WithSeat(ctx context.Context, sessionID int64, seat int, fn func(ctx context.Context, tx SeatTx) error) error

	// ExpireHolds releases every active hold whose expiry is at or before now,
	// optionally scoped to one session, and returns how many were released.
	ExpireHolds(ctx context.Context, sessionID *int64, now time.Time) (int64, error)
}

// SeatTx exposes the records of one seat slot inside a Ledger.WithSeat unit.
type SeatTx interface {
	// Ticket returns the ticket sold for the seat, or ErrNotFound.
	Ticket(ctx context.Context) (*domain.Ticket, error)

	// ActiveHold returns the hold on the seat still flagged active, expired
	// or not, or ErrNotFound.
	ActiveHold(ctx context.Context) (*domain.Hold, error)

	// LatestHold returns the most recent hold the user placed on the seat in
	// any state, or ErrNotFound.
	LatestHold(ctx context.Context, userID int64) (*domain.Hold, error)

	// InsertHold stores a new active hold. ErrConflict if another active hold
	// already exists for the seat.
	InsertHold(ctx context.Context, h *domain.Hold) error

	// ReleaseHold flags an active hold inactive. ErrNotFound if the hold is not
	// active.
	ReleaseHold(ctx context.Context, holdID uuid.UUID, reason domain.ReleaseReason, at time.Time) error

	// InsertTicket stores a ticket. ErrConflict if the seat was already sold.
	InsertTicket(ctx context.Context, t *domain.Ticket) error
}
