package service

import (
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/repository"
	redis "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service/admin"
	"github.com/kirinyoku/tix-cinema/internal/service/query"
	"github.com/kirinyoku/tix-cinema/internal/service/reservation"
	"github.com/kirinyoku/tix-cinema/internal/service/tickets"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
	Tickets     *tickets.Service
}

type Config struct {
	Reservation reservation.Config
	CatalogTTL  time.Duration
}

type CatalogBackend interface {
	redis.CatalogSource
	admin.Catalog
}

type TicketBackend interface {
	query.Tickets
	tickets.Store
}

// Backend is the storage the services run on: postgres in production, the
// in-memory repositories in tests.
type Backend struct {
	Ledger  repository.Ledger
	Catalog CatalogBackend
	Tickets TicketBackend
}

type Deps struct {
	Backend Backend
	Cache   *redis.Cache
	Seats   *redis.SeatsPubSub
	Limiter *redis.SlidingWindowLimiter
	// TicketEvents is optional.
	TicketEvents reservation.TicketPublisher
	Logger       *slog.Logger
	Clock        func() time.Time
}

func NewServices(d Deps, cfg Config) *Services {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	if d.Clock == nil {
		d.Clock = time.Now
	}

	catalog := redis.NewCachedCatalog(d.Backend.Catalog, d.Cache, cfg.CatalogTTL)

	opts := []reservation.Option{
		reservation.WithLogger(d.Logger),
		reservation.WithClock(d.Clock),
		reservation.WithLimiter(d.Limiter),
		reservation.WithSeatNotifier(d.Seats),
	}
	if d.TicketEvents != nil {
		opts = append(opts, reservation.WithTicketPublisher(d.TicketEvents))
	}

	return &Services{
		Reservation: reservation.New(d.Backend.Ledger, catalog, catalog, cfg.Reservation, opts...),
		Query:       query.New(catalog, d.Backend.Tickets, d.Clock),
		Admin:       admin.New(d.Backend.Catalog, d.Cache, d.Logger),
		Tickets:     tickets.New(d.Backend.Tickets, d.Clock),
	}
}
