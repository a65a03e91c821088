package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// Catalog is the write side of the catalog.
type Catalog interface {
	CreateHall(ctx context.Context, name string, capacity int) (int64, error)
	CreateMovie(ctx context.Context, title string, durationMin int) (int64, error)
	CreateSession(ctx context.Context, movieID, hallID int64, startsAt time.Time, priceCents int64) (int64, error)
	SetSessionActive(ctx context.Context, id int64, active bool) error
	CreatePromoCode(ctx context.Context, p domain.PromoCode) error
}

// Invalidator drops cached catalog entries.
type Invalidator interface {
	InvalidateSession(ctx context.Context, sessionID int64) error
	InvalidatePromoCode(ctx context.Context, code string) error
}

type Service struct {
	catalog Catalog
	cache   Invalidator
	log     *slog.Logger
}

func New(catalog Catalog, cache Invalidator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		catalog: catalog,
		cache:   cache,
		log:     log.With("component", "admin"),
	}
}

// CreateHall creates a hall and returns its ID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - name: unique hall name.
//   - capacity: number of seats, at least 1.
//
// Returns:
//   - int64: the created hall ID on success.
//   - error: admin.ErrInvalidInput if name is empty or capacity < 1.
//   - error: admin.ErrHallConflict if a hall with the same name already exists.
func (s *Service) CreateHall(ctx context.Context, name string, capacity int) (int64, error) {
	const op = "service.admin.CreateHall"

	name = strings.TrimSpace(name)
	if name == "" || capacity < 1 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	id, err := s.catalog.CreateHall(ctx, name, capacity)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s: %w", op, ErrHallConflict)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Service) CreateMovie(ctx context.Context, title string, durationMin int) (int64, error) {
	const op = "service.admin.CreateMovie"

	title = strings.TrimSpace(title)
	if title == "" || durationMin < 1 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	id, err := s.catalog.CreateMovie(ctx, title, durationMin)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// CreateSession schedules a movie in a hall. The session is created active
// and takes its capacity from the hall.
//
// Parameters:
//   - ctx: request-scoped context.
//   - movieID, hallID: the movie and hall to combine.
//   - startsAt: session start time.
//   - priceCents: seat price in cents, not negative.
//
// Returns:
//   - int64: the created session ID.
//   - error: admin.ErrCatalogReference if the movie or hall does not exist.
func (s *Service) CreateSession(
	ctx context.Context,
	movieID, hallID int64,
	startsAt time.Time,
	priceCents int64,
) (int64, error) {
	const op = "service.admin.CreateSession"

	if startsAt.IsZero() || priceCents < 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	id, err := s.catalog.CreateSession(ctx, movieID, hallID, startsAt, priceCents)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", op, ErrCatalogReference)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("session created",
		slog.Int64("session_id", id),
		slog.Int64("movie_id", movieID),
		slog.Int64("hall_id", hallID),
	)

	return id, nil
}

// SetSessionActive opens or closes a session for booking.
//
// Returns:
//   - error: admin.ErrSessionNotFound if the session does not exist.
func (s *Service) SetSessionActive(ctx context.Context, id int64, active bool) error {
	const op = "service.admin.SetSessionActive"

	if err := s.catalog.SetSessionActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.InvalidateSession(ctx, id); err != nil {
		s.log.Warn("invalidate session", slog.Int64("session_id", id), slog.Any("error", err))
	}

	return nil
}

// CreatePromoCode stores a new promo code.
//
// Returns:
//   - error: admin.ErrInvalidInput if the code is empty, the discount is outside 0..100
//     or the validity window is empty.
//   - error: admin.ErrPromoConflict if the code already exists.
func (s *Service) CreatePromoCode(ctx context.Context, p domain.PromoCode) error {
	const op = "service.admin.CreatePromoCode"

	p.Code = strings.TrimSpace(p.Code)
	if p.Code == "" ||
		p.DiscountPercent < 0 || p.DiscountPercent > 100 ||
		!p.ExpiresAt.After(p.StartsAt) {
		return fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	if err := s.catalog.CreatePromoCode(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s: %w", op, ErrPromoConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.InvalidatePromoCode(ctx, p.Code); err != nil {
		s.log.Warn("invalidate promo code", slog.String("code", p.Code), slog.Any("error", err))
	}

	return nil
}
