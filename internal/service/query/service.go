package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// Catalog is the read side of the catalog, usually the cached one.
type Catalog interface {
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
	GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error)
}

// Tickets is the per-user read side of the ledger.
type Tickets interface {
	TicketsByUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
	LiveHoldsByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Hold, error)
}

type Service struct {
	catalog Catalog
	tickets Tickets
	now     func() time.Time
}

func New(catalog Catalog, tickets Tickets, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{
		catalog: catalog,
		tickets: tickets,
		now:     now,
	}
}

// GetSession retrieves a session by its ID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the session to retrieve.
//
// Returns:
//   - *domain.Session: the retrieved session.
//   - error: query.ErrSessionNotFound if the session is not found.
func (s *Service) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "service.query.GetSession"

	sess, err := s.catalog.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sess, nil
}

// PromoCheck is the outcome of checking a promo code.
type PromoCheck struct {
	Code            string `json:"code"`
	Valid           bool   `json:"valid"`
	DiscountPercent int    `json:"discount_percent"`
}

// CheckPromoCode reports whether a promo code may be applied right now.
//
// Parameters:
//   - ctx: request-scoped context.
//   - code: the promo code.
//
// Returns:
//   - *PromoCheck: validity and discount of the code.
//   - error: query.ErrPromoNotFound if the code does not exist.
func (s *Service) CheckPromoCode(ctx context.Context, code string) (*PromoCheck, error) {
	const op = "service.query.CheckPromoCode"

	p, err := s.catalog.GetPromoCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPromoNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &PromoCheck{
		Code:            p.Code,
		Valid:           p.Valid(s.now()),
		DiscountPercent: p.DiscountPercent,
	}, nil
}

// ListUserTickets returns the user's tickets, newest first.
func (s *Service) ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	const op = "service.query.ListUserTickets"

	tickets, err := s.tickets.TicketsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

// ListUserHolds returns the user's holds that are still live, soonest
// expiry first. Lapsed holds are left out even if no sweep released them.
func (s *Service) ListUserHolds(ctx context.Context, userID int64) ([]domain.Hold, error) {
	const op = "service.query.ListUserHolds"

	holds, err := s.tickets.LiveHoldsByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return holds, nil
}
