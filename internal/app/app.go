package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/config"
	"github.com/kirinyoku/tix-cinema/internal/postgres"
	"github.com/kirinyoku/tix-cinema/internal/queue"
	"github.com/kirinyoku/tix-cinema/internal/redis"
	postgresrepo "github.com/kirinyoku/tix-cinema/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/reservation"
	httpgin "github.com/kirinyoku/tix-cinema/internal/transport/http/gin"
	"github.com/kirinyoku/tix-cinema/internal/uow"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool      *pgxpool.Pool
	rdb       *goredis.Client
	services  *service.Services
	seats     *redisrepo.SeatsPubSub
	hub       *httpgin.SeatHub
	publisher *queue.Publisher
	audit     *queue.AuditConsumer
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	dsn := cfg.Postgres.DSN()

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(dsn); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}

	// Initialize dependencies
	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn, MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	seats := redisrepo.NewSeatsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "seats", cfg.Reservation.RateLimitPerMinute, time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	deps := service.Deps{
		Backend: service.Backend{
			Ledger:  store.Ledger(),
			Catalog: store.Catalog(),
			Tickets: store.Tickets(),
		},
		Cache:   cache,
		Seats:   seats,
		Limiter: limiter,
		Logger:  logger,
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pgxPool,
		rdb:    rdb,
		seats:  seats,
		hub:    httpgin.NewSeatHub(),
	}

	if cfg.AMQP.URL != "" {
		a.publisher = queue.NewPublisher(cfg.AMQP.URL, logger)
		a.audit = queue.NewAuditConsumer(cfg.AMQP.URL, logger)
		deps.TicketEvents = a.publisher
	}

	// Initialize services
	a.services = service.NewServices(deps, service.Config{
		Reservation: reservation.Config{
			Ledger:        uow.Config{MaxAttempts: cfg.Reservation.LedgerMaxRetries},
			SweepInterval: cfg.Reservation.SweepInterval,
		},
		CatalogTTL: cfg.Redis.CacheTTL,
	})

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is unset; trusting X-User-ID and X-User-Role headers")
	}

	// Initialize Gin router
	router := httpgin.NewRouter(a.services, httpgin.RouterConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		Idem:         idempotencyStore,
		Hub:          a.hub,
		AllowOrigins: cfg.Server.CORSOrigins,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Release expired holds in the background
	g.Go(func() error {
		return a.services.Reservation.RunSweeper(gCtx)
	})

	// Feed SSE clients from redis pub/sub
	g.Go(func() error {
		err := a.seats.Subscribe(gCtx, a.hub.Broadcast)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("seat change subscription: %w", err)
		}
		return nil
	})

	if a.audit != nil {
		g.Go(func() error {
			return a.audit.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		a.hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close broker publisher", slog.Any("error", err))
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("close redis", slog.Any("error", err))
	}

	a.pool.Close()
}
