// Package reservation is the seat allocation engine. It holds no state of
// its own: every decision is taken inside a per-seat ledger unit against
// the time supplied by its clock.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/uow"
)

type SessionSource interface {
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
}

type PromoSource interface {
	GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error)
}

// Limiter caps how often one user may place holds and purchases.
type Limiter interface {
	Allow(ctx context.Context, id string) (bool, int64, time.Duration, error)
}

// SeatNotifier is told about seats that changed state after the change is
// committed.
type SeatNotifier interface {
	PublishSeatChanged(ctx context.Context, sessionID int64, seat int, status domain.SeatStatus) error
}

// TicketPublisher is told about every sold ticket after the sale is committed.
type TicketPublisher interface {
	PublishTicketPurchased(ctx context.Context, t domain.Ticket) error
}

type Config struct {
	Ledger        uow.Config
	SweepInterval time.Duration
}

type Service struct {
	ledger   repository.Ledger
	sessions SessionSource
	promos   PromoSource
	uow      *uow.UoW
	limiter  Limiter
	notifier SeatNotifier
	tickets  TicketPublisher
	log      *slog.Logger
	now      func() time.Time
	cfg      Config
}

type Option func(*Service)

func WithLimiter(l Limiter) Option { return func(s *Service) { s.limiter = l } }

func WithSeatNotifier(n SeatNotifier) Option { return func(s *Service) { s.notifier = n } }

func WithTicketPublisher(p TicketPublisher) Option { return func(s *Service) { s.tickets = p } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(
	ledger repository.Ledger,
	sessions SessionSource,
	promos PromoSource,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	s := &Service{
		ledger:   ledger,
		sessions: sessions,
		promos:   promos,
		uow:      uow.NewUoW(ledger, cfg.Ledger),
		log:      slog.Default(),
		now:      time.Now,
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "reservation")

	return s
}

// GetSeatMap returns the status of every seat of a session.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: ID of the session.
//
// Returns:
//   - domain.SeatMap: one entry per seat 1..capacity, read from a single ledger snapshot.
//   - error: reservation.ErrSessionNotFound if the session does not exist.
func (s *Service) GetSeatMap(ctx context.Context, sessionID int64) (domain.SeatMap, error) {
	const op = "service.reservation.GetSeatMap"

	now := s.now()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	occupied, err := s.ledger.Occupied(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	seats := make(domain.SeatMap, sess.Capacity)
	for i := 1; i <= sess.Capacity; i++ {
		seats[i] = domain.SeatAvailable
	}

	for _, seat := range occupied {
		if sess.ValidSeat(seat) {
			seats[seat] = domain.SeatTaken
		}
	}

	return seats, nil
}

// PlaceHold claims a free seat for userID for domain.HoldDuration.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: ID of the session.
//   - userID: ID of the user placing the hold.
//   - seat: seat index, 1..capacity.
//
// Returns:
//   - *domain.Hold: the created hold.
//   - error: reservation.ErrSessionNotFound, ErrSessionNotBookable, ErrSeatOutOfRange.
//   - error: reservation.ErrSeatUnavailable if the seat is sold or held.
//   - error: reservation.ErrLedgerUnavailable if the ledger kept aborting the unit.
func (s *Service) PlaceHold(ctx context.Context, sessionID, userID int64, seat int) (*domain.Hold, error) {
	const op = "service.reservation.PlaceHold"

	now := s.now()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !sess.Bookable(now) {
		return nil, fmt.Errorf("%s:%w", op, ErrSessionNotBookable)
	}

	if !sess.ValidSeat(seat) {
		return nil, fmt.Errorf("%s:%w", op, ErrSeatOutOfRange)
	}

	if err := s.allow(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	hold := domain.NewHold(*sess, userID, seat, now)

	err = s.uow.Seat(ctx, sessionID, seat, func(
		ctx context.Context,
		tx repository.SeatTx,
		after func(uow.AfterCommit),
	) error {
		if err := ensureNoTicket(ctx, tx); err != nil {
			return err
		}

		if err := releaseLapsed(ctx, tx, now); err != nil {
			return err
		}

		if err := tx.InsertHold(ctx, &hold); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrSeatUnavailable
			}
			return err
		}

		after(func(ctx context.Context) {
			s.seatChanged(ctx, sessionID, seat, domain.SeatTaken)
		})

		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.log.Debug("hold placed",
		slog.Int64("session_id", sessionID),
		slog.Int("seat", seat),
		slog.Int64("user_id", userID),
		slog.String("hold_id", hold.ID.String()),
	)

	return &hold, nil
}

type purchaseOptions struct {
	promoCode string
}

type PurchaseOption func(*purchaseOptions)

// WithPromoCode records code on the ticket. The code must be valid at the
// time of purchase.
func WithPromoCode(code string) PurchaseOption {
	return func(o *purchaseOptions) { o.promoCode = code }
}

// ConfirmPurchase sells a seat to userID. A live hold of the user on the seat
// is converted into the ticket at its price snapshot; without one the seat is
// bought directly at the session price.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: ID of the session.
//   - userID: ID of the buyer.
//   - seat: seat index, 1..capacity.
//   - opts: optional purchase settings such as WithPromoCode.
//
// Returns:
//   - *domain.Ticket: the sold ticket.
//   - error: reservation.ErrHoldExpired if the user's latest hold on the seat ran out.
//   - error: reservation.ErrHoldNotFound if the user's hold on the seat was already converted.
//   - error: reservation.ErrSeatUnavailable if someone else holds or bought the seat.
//   - error: reservation.ErrSessionNotFound, ErrSessionNotBookable, ErrSeatOutOfRange, ErrPromoInvalid.
//   - error: reservation.ErrLedgerUnavailable if the ledger kept aborting the unit.
func (s *Service) ConfirmPurchase(
	ctx context.Context,
	sessionID, userID int64,
	seat int,
	opts ...PurchaseOption,
) (*domain.Ticket, error) {
	const op = "service.reservation.ConfirmPurchase"

	var o purchaseOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := s.now()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Closing a session also stops conversion of holds already placed on it.
	// Only the start time is left to the direct path below.
	if !sess.IsActive {
		return nil, fmt.Errorf("%s:%w", op, ErrSessionNotBookable)
	}

	if !sess.ValidSeat(seat) {
		return nil, fmt.Errorf("%s:%w", op, ErrSeatOutOfRange)
	}

	if o.promoCode != "" {
		if err := s.checkPromo(ctx, o.promoCode, now); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	if err := s.allow(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var ticket domain.Ticket

	err = s.uow.Seat(ctx, sessionID, seat, func(
		ctx context.Context,
		tx repository.SeatTx,
		after func(uow.AfterCommit),
	) error {
		latest, err := tx.LatestHold(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		switch {
		case latest != nil && latest.Live(now):
			if err := tx.ReleaseHold(ctx, latest.ID, domain.ReleaseConverted, now); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrHoldExpired
				}
				return err
			}

			holdID := latest.ID
			ticket = newTicket(sessionID, userID, seat, latest.PriceCents, &holdID, o.promoCode, now)

		case latest != nil && latest.Lapsed(now):
			return ErrHoldExpired

		case latest != nil && latest.ReleaseReason == domain.ReleaseConverted:
			// The seat was already sold from this hold.
			return ErrHoldNotFound

		default:
			if !sess.Bookable(now) {
				return ErrSessionNotBookable
			}

			if err := ensureNoTicket(ctx, tx); err != nil {
				return err
			}

			if err := releaseLapsed(ctx, tx, now); err != nil {
				return err
			}

			ticket = newTicket(sessionID, userID, seat, sess.PriceCents, nil, o.promoCode, now)
		}

		if err := tx.InsertTicket(ctx, &ticket); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrSeatUnavailable
			}
			return err
		}

		sold := ticket
		after(func(ctx context.Context) {
			s.seatChanged(ctx, sessionID, seat, domain.SeatTaken)
			s.ticketSold(ctx, sold)
		})

		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.log.Info("ticket purchased",
		slog.Int64("session_id", sessionID),
		slog.Int("seat", seat),
		slog.Int64("user_id", userID),
		slog.String("ticket_id", ticket.ID.String()),
		slog.Bool("from_hold", ticket.HoldID != nil),
	)

	return &ticket, nil
}

// CancelHold releases the caller's live hold on a seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: ID of the session.
//   - userID: ID of the user cancelling.
//   - seat: seat index, 1..capacity.
//
// Returns:
//   - error: reservation.ErrHoldNotFound if the seat carries no live hold.
//   - error: reservation.ErrNotOwner if the live hold belongs to another user.
//   - error: reservation.ErrSessionNotFound, ErrSeatOutOfRange.
func (s *Service) CancelHold(ctx context.Context, sessionID, userID int64, seat int) error {
	const op = "service.reservation.CancelHold"

	now := s.now()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !sess.ValidSeat(seat) {
		return fmt.Errorf("%s:%w", op, ErrSeatOutOfRange)
	}

	var owner int64

	err = s.uow.Seat(ctx, sessionID, seat, func(
		ctx context.Context,
		tx repository.SeatTx,
		after func(uow.AfterCommit),
	) error {
		cur, err := tx.ActiveHold(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrHoldNotFound
			}
			return err
		}

		if !cur.Live(now) {
			return ErrHoldNotFound
		}

		if cur.UserID != userID {
			owner = cur.UserID
			return ErrNotOwner
		}

		if err := tx.ReleaseHold(ctx, cur.ID, domain.ReleaseCancelled, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrHoldNotFound
			}
			return err
		}

		after(func(ctx context.Context) {
			s.seatChanged(ctx, sessionID, seat, domain.SeatAvailable)
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			s.log.Warn("cancel of foreign hold",
				slog.Int64("session_id", sessionID),
				slog.Int("seat", seat),
				slog.Int64("user_id", userID),
				slog.Int64("owner_id", owner),
			)
		}
		return s.fail(op, err)
	}

	return nil
}

// SweepExpiredHolds releases every active hold whose expiry has passed.
// Seat availability never depends on it; it only tidies the ledger.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: optional session scope; nil sweeps all sessions.
//
// Returns:
//   - int64: the number of released holds.
//   - error: if the ledger update fails.
func (s *Service) SweepExpiredHolds(ctx context.Context, sessionID *int64) (int64, error) {
	const op = "service.reservation.SweepExpiredHolds"

	released, err := s.ledger.ExpireHolds(ctx, sessionID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return released, nil
}

// RunSweeper calls SweepExpiredHolds every SweepInterval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			released, err := s.SweepExpiredHolds(ctx, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("sweep expired holds", slog.Any("error", err))
				continue
			}
			if released > 0 {
				s.log.Info("expired holds released", slog.Int64("count", released))
			}
		}
	}
}

func (s *Service) session(ctx context.Context, id int64) (*domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return sess, nil
}

func (s *Service) checkPromo(ctx context.Context, code string, now time.Time) error {
	p, err := s.promos.GetPromoCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPromoInvalid
		}
		return err
	}

	if !p.Valid(now) {
		return ErrPromoInvalid
	}

	return nil
}

// allow fails open when the limiter itself is unreachable.
func (s *Service) allow(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		s.log.Warn("rate limiter unavailable", slog.Any("error", err))
		return nil
	}

	if !ok {
		return &RateLimitError{RetryAfter: retry}
	}

	return nil
}

func (s *Service) fail(op string, err error) error {
	if errors.Is(err, uow.ErrUnavailable) {
		s.log.Error("ledger retries exhausted", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s:%w: %v", op, ErrLedgerUnavailable, err)
	}

	return fmt.Errorf("%s:%w", op, err)
}

func (s *Service) seatChanged(ctx context.Context, sessionID int64, seat int, status domain.SeatStatus) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.PublishSeatChanged(ctx, sessionID, seat, status); err != nil {
		s.log.Warn("publish seat change", slog.Int64("session_id", sessionID), slog.Any("error", err))
	}
}

func (s *Service) ticketSold(ctx context.Context, t domain.Ticket) {
	if s.tickets == nil {
		return
	}

	if err := s.tickets.PublishTicketPurchased(ctx, t); err != nil {
		s.log.Warn("publish ticket purchased", slog.String("ticket_id", t.ID.String()), slog.Any("error", err))
	}
}

// ensureNoTicket returns ErrSeatUnavailable if the seat is already sold.
func ensureNoTicket(ctx context.Context, tx repository.SeatTx) error {
	_, err := tx.Ticket(ctx)
	switch {
	case err == nil:
		return ErrSeatUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}

// releaseLapsed frees the seat's active hold if it ran out of time and
// returns ErrSeatUnavailable if it is still live.
func releaseLapsed(ctx context.Context, tx repository.SeatTx, now time.Time) error {
	cur, err := tx.ActiveHold(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if cur.Live(now) {
		return ErrSeatUnavailable
	}

	// A concurrent sweep may have released it already.
	if err := tx.ReleaseHold(ctx, cur.ID, domain.ReleaseExpired, now); err != nil &&
		!errors.Is(err, repository.ErrNotFound) {
		return err
	}

	return nil
}

func newTicket(
	sessionID, userID int64,
	seat int,
	priceCents int64,
	holdID *uuid.UUID,
	promo string,
	now time.Time,
) domain.Ticket {
	return domain.Ticket{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Seat:        seat,
		UserID:      userID,
		PriceCents:  priceCents,
		HoldID:      holdID,
		PromoCode:   promo,
		PurchasedAt: now,
	}
}
