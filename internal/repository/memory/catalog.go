package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// Catalog keeps halls, movies, sessions and promo codes.
type Catalog struct {
	mu       sync.RWMutex
	nextID   int64
	halls    map[int64]domain.Hall
	movies   map[int64]domain.Movie
	sessions map[int64]domain.Session
	promos   map[string]domain.PromoCode
}

func NewCatalog() *Catalog {
	return &Catalog{
		halls:    make(map[int64]domain.Hall),
		movies:   make(map[int64]domain.Movie),
		sessions: make(map[int64]domain.Session),
		promos:   make(map[string]domain.PromoCode),
	}
}

func (c *Catalog) id() int64 {
	c.nextID++
	return c.nextID
}

// PutSession stores s as is, keeping its ID.
func (c *Catalog) PutSession(s domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[s.ID] = s
	if s.ID > c.nextID {
		c.nextID = s.ID
	}
}

func (c *Catalog) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (c *Catalog) GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.promos[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (c *Catalog) CreateHall(ctx context.Context, name string, capacity int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.halls {
		if h.Name == name {
			return 0, repository.ErrConflict
		}
	}

	id := c.id()
	c.halls[id] = domain.Hall{ID: id, Name: name, Capacity: capacity}
	return id, nil
}

func (c *Catalog) CreateMovie(ctx context.Context, title string, durationMin int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.id()
	c.movies[id] = domain.Movie{ID: id, Title: title, DurationMin: durationMin}
	return id, nil
}

func (c *Catalog) CreateSession(
	ctx context.Context,
	movieID, hallID int64,
	startsAt time.Time,
	priceCents int64,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.halls[hallID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if _, ok := c.movies[movieID]; !ok {
		return 0, repository.ErrNotFound
	}

	id := c.id()
	c.sessions[id] = domain.Session{
		ID:         id,
		MovieID:    movieID,
		HallID:     hallID,
		Capacity:   h.Capacity,
		StartsAt:   startsAt,
		PriceCents: priceCents,
		IsActive:   true,
	}
	return id, nil
}

func (c *Catalog) SetSessionActive(ctx context.Context, id int64, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsActive = active
	c.sessions[id] = s
	return nil
}

func (c *Catalog) CreatePromoCode(ctx context.Context, p domain.PromoCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.promos[p.Code]; ok {
		return repository.ErrConflict
	}
	c.promos[p.Code] = p
	return nil
}
