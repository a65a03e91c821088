package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// ErrUnavailable is returned when the ledger kept aborting a unit until the
// retry budget ran out.
var ErrUnavailable = errors.New("ledger unavailable")

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

type Config struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// UoW represents a unit of work over one seat slot of the ledger.
type UoW struct {
	ledger repository.Ledger
	cfg    Config
}

func NewUoW(ledger repository.Ledger, cfg Config) *UoW {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 20 * time.Millisecond
	}

	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = max(250*time.Millisecond, cfg.InitialInterval)
	}

	return &UoW{ledger: ledger, cfg: cfg}
}

// Seat runs fn inside the ledger's atomic unit for (sessionID, seat).
// Units aborted by a concurrent writer are run again from the start, up to
// MaxAttempts times, with exponential backoff between attempts. Hooks
// registered through after run once, after the attempt that committed.
func (u *UoW) Seat(
	ctx context.Context,
	sessionID int64,
	seat int,
	fn func(ctx context.Context, tx repository.SeatTx, after func(AfterCommit)) error,
) error {
	const op = "uow.Seat"

	var hooks []AfterCommit

	attempt := func() (struct{}, error) {
		hooks = hooks[:0]

		err := u.ledger.WithSeat(ctx, sessionID, seat, func(ctx context.Context, tx repository.SeatTx) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err != nil && !repository.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(u.backOff()),
		backoff.WithMaxTries(u.cfg.MaxAttempts),
	)
	if err != nil {
		if repository.IsRetryable(err) {
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (u *UoW) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.cfg.InitialInterval
	b.MaxInterval = u.cfg.MaxInterval
	return b
}
