package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

const holdColumns = `id, session_id, seat, user_id, price_cents, created_at, expires_at, active, released_at, release_reason`

const ticketColumns = `id, session_id, seat, user_id, price_cents, hold_id, promo_code, purchased_at, used_at`

// LedgerRepo stores tickets and holds. Seat units run in READ COMMITTED
// behind a transaction-scoped advisory lock keyed by (session, seat), so
// every statement in a unit sees the writes of the unit that held the lock
// before it. The partial unique index on active holds and the unique
// index on tickets reject anything that slips past the lock.
type LedgerRepo struct {
	store *Store
}

var seatTxOpts = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// Occupied lists the seats of a session that are sold or held at now.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - sessionID: session to inspect.
//   - now: instant against which hold expiry is compared.
//
// Returns:
//   - []int: occupied seat indices in ascending order.
//   - error: if the query fails.
func (r *LedgerRepo) Occupied(ctx context.Context, sessionID int64, now time.Time) ([]int, error) {
	const op = "postgresrepo.LedgerRepo.Occupied"

	// One statement, one snapshot.
	rows, err := r.store.pool.Query(ctx,
		`SELECT seat FROM tickets WHERE session_id = $1
		 UNION
		 SELECT seat FROM holds
		 WHERE session_id = $1 AND active AND expires_at > $2
		 ORDER BY seat`,
		sessionID, now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []int
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// WithSeat runs fn as one transaction holding the seat's advisory lock.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - sessionID, seat: the seat slot to lock.
//   - fn: the unit body; returning an error rolls back everything it wrote.
//
// Returns:
//   - error: whatever fn returned, or a translated driver error.
//     repository.ErrSerialization marks a unit that may be retried.
func (r *LedgerRepo) WithSeat(
	ctx context.Context,
	sessionID int64,
	seat int,
	fn func(ctx context.Context, tx repository.SeatTx) error,
) error {
	const op = "postgresrepo.LedgerRepo.WithSeat"

	err := r.store.RunTx(ctx, &seatTxOpts, func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			seatLockKey(sessionID, seat),
		); err != nil {
			return wrapDBErr(op, err)
		}

		return fn(ctx, &seatTx{db: db, sessionID: sessionID, seat: seat})
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ExpireHolds releases active holds whose expiry is at or before now.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - sessionID: optional session scope; nil sweeps every session.
//   - now: instant against which hold expiry is compared.
//
// Returns:
//   - int64: the number of released holds.
//   - error: if the update fails.
func (r *LedgerRepo) ExpireHolds(ctx context.Context, sessionID *int64, now time.Time) (int64, error) {
	const op = "postgresrepo.LedgerRepo.ExpireHolds"

	tag, err := r.store.pool.Exec(ctx,
		`UPDATE holds
		 SET active = false, released_at = $1, release_reason = $2
		 WHERE active
		 	AND expires_at <= $1
		 	AND ($3::bigint IS NULL OR session_id = $3)`,
		now, string(domain.ReleaseExpired), sessionID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func seatLockKey(sessionID int64, seat int) string {
	return fmt.Sprintf("seat:%d:%d", sessionID, seat)
}

type seatTx struct {
	db        DB
	sessionID int64
	seat      int
}

func (tx *seatTx) Ticket(ctx context.Context) (*domain.Ticket, error) {
	const op = "postgresrepo.seatTx.Ticket"

	t, err := scanTicket(tx.db.QueryRow(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE session_id = $1 AND seat = $2`,
		tx.sessionID, tx.seat,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (tx *seatTx) ActiveHold(ctx context.Context) (*domain.Hold, error) {
	const op = "postgresrepo.seatTx.ActiveHold"

	h, err := scanHold(tx.db.QueryRow(ctx,
		`SELECT `+holdColumns+`
		 FROM holds
		 WHERE session_id = $1 AND seat = $2 AND active
		 FOR UPDATE`,
		tx.sessionID, tx.seat,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return h, nil
}

func (tx *seatTx) LatestHold(ctx context.Context, userID int64) (*domain.Hold, error) {
	const op = "postgresrepo.seatTx.LatestHold"

	h, err := scanHold(tx.db.QueryRow(ctx,
		`SELECT `+holdColumns+`
		 FROM holds
		 WHERE session_id = $1 AND seat = $2 AND user_id = $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tx.sessionID, tx.seat, userID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return h, nil
}

func (tx *seatTx) InsertHold(ctx context.Context, h *domain.Hold) error {
	const op = "postgresrepo.seatTx.InsertHold"

	if _, err := tx.db.Exec(ctx,
		`INSERT INTO holds(id, session_id, seat, user_id, price_cents, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, true)`,
		h.ID, h.SessionID, h.Seat, h.UserID, h.PriceCents, h.CreatedAt, h.ExpiresAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (tx *seatTx) ReleaseHold(
	ctx context.Context,
	holdID uuid.UUID,
	reason domain.ReleaseReason,
	at time.Time,
) error {
	const op = "postgresrepo.seatTx.ReleaseHold"

	tag, err := tx.db.Exec(ctx,
		`UPDATE holds
		 SET active = false, released_at = $2, release_reason = $3
		 WHERE id = $1 AND active`,
		holdID, at, string(reason),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (tx *seatTx) InsertTicket(ctx context.Context, t *domain.Ticket) error {
	const op = "postgresrepo.seatTx.InsertTicket"

	var promo *string
	if t.PromoCode != "" {
		promo = &t.PromoCode
	}

	if _, err := tx.db.Exec(ctx,
		`INSERT INTO tickets(id, session_id, seat, user_id, price_cents, hold_id, promo_code, purchased_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.SessionID, t.Seat, t.UserID, t.PriceCents, t.HoldID, promo, t.PurchasedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func scanHold(row pgx.Row) (*domain.Hold, error) {
	var (
		h      domain.Hold
		reason *string
	)

	if err := row.Scan(
		&h.ID,
		&h.SessionID,
		&h.Seat,
		&h.UserID,
		&h.PriceCents,
		&h.CreatedAt,
		&h.ExpiresAt,
		&h.Active,
		&h.ReleasedAt,
		&reason,
	); err != nil {
		return nil, err
	}

	if reason != nil {
		h.ReleaseReason = domain.ReleaseReason(*reason)
	}

	return &h, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t     domain.Ticket
		promo *string
	)

	if err := row.Scan(
		&t.ID,
		&t.SessionID,
		&t.Seat,
		&t.UserID,
		&t.PriceCents,
		&t.HoldID,
		&promo,
		&t.PurchasedAt,
		&t.UsedAt,
	); err != nil {
		return nil, err
	}

	if promo != nil {
		t.PromoCode = *promo
	}

	return &t, nil
}
