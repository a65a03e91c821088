package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketAlreadyUsed = errors.New("ticket already used")
)

type Store interface {
	GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	MarkTicketUsed(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Ticket, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{store: store, now: now}
}

// GetTicket retrieves a ticket owned by userID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the ticket.
//   - userID: the caller; tickets of other users are reported as missing.
//
// Returns:
//   - *domain.Ticket: the ticket.
//   - error: tickets.ErrTicketNotFound if no such ticket belongs to userID.
func (s *Service) GetTicket(ctx context.Context, id uuid.UUID, userID int64) (*domain.Ticket, error) {
	const op = "service.tickets.GetTicket"

	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if t.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
	}

	return t, nil
}

// Redeem marks a ticket as used at the entrance. A ticket can be redeemed
// once.
//
// Returns:
//   - *domain.Ticket: the ticket with UsedAt set.
//   - error: tickets.ErrTicketNotFound if the ticket does not exist.
//   - error: tickets.ErrTicketAlreadyUsed if it was redeemed before.
func (s *Service) Redeem(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	const op = "service.tickets.Redeem"

	t, err := s.store.MarkTicketUsed(ctx, id, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s: %w", op, ErrTicketAlreadyUsed)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}
