package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// TicketRepo serves the read side of the ledger to user-facing views.
type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// TicketsByUser lists the user's tickets, newest first.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - userID: owner of the tickets.
//
// Returns:
//   - []domain.Ticket: the tickets, possibly empty.
//   - error: if the query fails.
func (r *TicketRepo) TicketsByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.TicketsByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE user_id = $1
		 ORDER BY purchased_at DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// LiveHoldsByUser lists the user's holds that are live at now, soonest
// expiry first.
func (r *TicketRepo) LiveHoldsByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Hold, error) {
	const op = "postgresrepo.TicketRepo.LiveHoldsByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+holdColumns+`
		 FROM holds
		 WHERE user_id = $1 AND active AND expires_at > $2
		 ORDER BY expires_at`,
		userID, now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// GetTicket retrieves a ticket by its ID.
//
// Returns:
//   - *domain.Ticket: the ticket when found.
//   - error: repository.ErrNotFound if the ticket does not exist.
func (r *TicketRepo) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.GetTicket"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// MarkTicketUsed sets the ticket's usage flag.
//
// Returns:
//   - *domain.Ticket: the updated ticket.
//   - error: repository.ErrNotFound if the ticket does not exist.
//   - error: repository.ErrConflict if the ticket was already used.
func (r *TicketRepo) MarkTicketUsed(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.MarkTicketUsed"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`UPDATE tickets SET used_at = $2
		 WHERE id = $1 AND used_at IS NULL
		 RETURNING `+ticketColumns,
		id, at,
	))
	if err == nil {
		return t, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapDBErr(op, err)
	}

	if _, err := r.GetTicket(ctx, id); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}
