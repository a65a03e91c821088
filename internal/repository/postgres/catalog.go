package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// CatalogRepo reads and writes halls, movies, sessions and promo codes.
type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetSession retrieves a session together with its hall capacity.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the session.
//
// Returns:
//   - *domain.Session: the session when found.
//   - error: repository.ErrNotFound if the session does not exist.
func (r *CatalogRepo) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgresrepo.CatalogRepo.GetSession"

	db := r.handle()

	var s domain.Session
	err := db.QueryRow(ctx,
		`SELECT s.id, s.movie_id, s.hall_id, h.capacity, s.starts_at, s.price_cents, s.is_active
		 FROM sessions s
		 JOIN halls h ON h.id = s.hall_id
		 WHERE s.id = $1`,
		id,
	).Scan(&s.ID, &s.MovieID, &s.HallID, &s.Capacity, &s.StartsAt, &s.PriceCents, &s.IsActive)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

// GetPromoCode retrieves a promo code.
//
// Returns:
//   - *domain.PromoCode: the promo code when found.
//   - error: repository.ErrNotFound if the code does not exist.
func (r *CatalogRepo) GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	const op = "postgresrepo.CatalogRepo.GetPromoCode"

	db := r.handle()

	var p domain.PromoCode
	err := db.QueryRow(ctx,
		`SELECT code, discount_percent, is_active, starts_at, expires_at
		 FROM promo_codes WHERE code = $1`,
		code,
	).Scan(&p.Code, &p.DiscountPercent, &p.IsActive, &p.StartsAt, &p.ExpiresAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *CatalogRepo) CreateHall(ctx context.Context, name string, capacity int) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateHall"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO halls(name, capacity)
		 VALUES ($1, $2)
		 RETURNING id`,
		name, capacity,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CatalogRepo) CreateMovie(ctx context.Context, title string, durationMin int) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateMovie"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO movies(title, duration_min)
		 VALUES ($1, $2)
		 RETURNING id`,
		title, durationMin,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// CreateSession inserts an active session.
//
// Returns:
//   - int64: the created session ID.
//   - error: repository.ErrNotFound if the movie or hall does not exist.
func (r *CatalogRepo) CreateSession(
	ctx context.Context,
	movieID, hallID int64,
	startsAt time.Time,
	priceCents int64,
) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateSession"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO sessions(movie_id, hall_id, starts_at, price_cents, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id`,
		movieID, hallID, startsAt, priceCents,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CatalogRepo) SetSessionActive(ctx context.Context, id int64, active bool) error {
	const op = "postgresrepo.CatalogRepo.SetSessionActive"

	db := r.handle()

	tag, err := db.Exec(ctx, `UPDATE sessions SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) CreatePromoCode(ctx context.Context, p domain.PromoCode) error {
	const op = "postgresrepo.CatalogRepo.CreatePromoCode"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO promo_codes(code, discount_percent, is_active, starts_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.Code, p.DiscountPercent, p.IsActive, p.StartsAt, p.ExpiresAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
