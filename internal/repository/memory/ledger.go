// Package memory holds an in-process implementation of the repository
// contracts. Every seat slot has its own mutex so that units on different
// seats run in parallel, while seat-map snapshots briefly exclude writers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

type slotKey struct {
	sessionID int64
	seat      int
}

type slot struct {
	mu     sync.Mutex
	ticket *domain.Ticket
	holds  []domain.Hold // creation order
}

func (s *slot) stage() *slotTx {
	tx := &slotTx{holds: make([]domain.Hold, len(s.holds))}
	copy(tx.holds, s.holds)
	if s.ticket != nil {
		t := *s.ticket
		tx.ticket = &t
	}
	return tx
}

type Ledger struct {
	// snap is held shared by seat units and exclusively by snapshot readers
	// and sweeps.
	snap sync.RWMutex

	mu    sync.Mutex
	slots map[slotKey]*slot
}

func NewLedger() *Ledger {
	return &Ledger{slots: make(map[slotKey]*slot)}
}

func (l *Ledger) slot(sessionID int64, seat int) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := slotKey{sessionID: sessionID, seat: seat}
	s, ok := l.slots[k]
	if !ok {
		s = &slot{}
		l.slots[k] = s
	}
	return s
}

// each calls fn for every slot. Callers must hold snap exclusively.
func (l *Ledger) each(fn func(k slotKey, s *slot)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, s := range l.slots {
		fn(k, s)
	}
}

func (l *Ledger) Occupied(ctx context.Context, sessionID int64, now time.Time) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var out []int
	l.each(func(k slotKey, s *slot) {
		if k.sessionID != sessionID {
			return
		}
		if s.ticket != nil {
			out = append(out, k.seat)
			return
		}
		for _, h := range s.holds {
			if h.Live(now) {
				out = append(out, k.seat)
				return
			}
		}
	})

	sort.Ints(out)
	return out, nil
}

func (l *Ledger) WithSeat(
	ctx context.Context,
	sessionID int64,
	seat int,
	fn func(ctx context.Context, tx repository.SeatTx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.snap.RLock()
	defer l.snap.RUnlock()

	s := l.slot(sessionID, seat)
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.stage()
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.ticket = tx.ticket
	s.holds = tx.holds
	return nil
}

func (l *Ledger) ExpireHolds(ctx context.Context, sessionID *int64, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var released int64
	l.each(func(k slotKey, s *slot) {
		if sessionID != nil && k.sessionID != *sessionID {
			return
		}
		for i := range s.holds {
			h := &s.holds[i]
			if h.Active && !h.ExpiresAt.After(now) {
				at := now
				h.Active = false
				h.ReleasedAt = &at
				h.ReleaseReason = domain.ReleaseExpired
				released++
			}
		}
	})

	return released, nil
}

// TicketsByUser returns the user's tickets, newest first.
func (l *Ledger) TicketsByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var out []domain.Ticket
	l.each(func(_ slotKey, s *slot) {
		if s.ticket != nil && s.ticket.UserID == userID {
			out = append(out, *s.ticket)
		}
	})

	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

// LiveHoldsByUser returns the user's live holds ordered by expiry.
func (l *Ledger) LiveHoldsByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var out []domain.Hold
	l.each(func(_ slotKey, s *slot) {
		for _, h := range s.holds {
			if h.UserID == userID && h.Live(now) {
				out = append(out, h)
			}
		}
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (l *Ledger) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var found *domain.Ticket
	l.each(func(_ slotKey, s *slot) {
		if s.ticket != nil && s.ticket.ID == id {
			t := *s.ticket
			found = &t
		}
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}

	return found, nil
}

// MarkTicketUsed sets the usage flag once. ErrConflict if it was already set.
func (l *Ledger) MarkTicketUsed(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.snap.Lock()
	defer l.snap.Unlock()

	var (
		found *domain.Ticket
		used  bool
	)
	l.each(func(_ slotKey, s *slot) {
		if s.ticket == nil || s.ticket.ID != id {
			return
		}
		if s.ticket.UsedAt != nil {
			used = true
			return
		}
		ts := at
		s.ticket.UsedAt = &ts
		t := *s.ticket
		found = &t
	})

	switch {
	case used:
		return nil, repository.ErrConflict
	case found == nil:
		return nil, repository.ErrNotFound
	}

	return found, nil
}

type slotTx struct {
	ticket *domain.Ticket
	holds  []domain.Hold
}

func (tx *slotTx) Ticket(context.Context) (*domain.Ticket, error) {
	if tx.ticket == nil {
		return nil, repository.ErrNotFound
	}
	t := *tx.ticket
	return &t, nil
}

func (tx *slotTx) ActiveHold(context.Context) (*domain.Hold, error) {
	for i := len(tx.holds) - 1; i >= 0; i-- {
		if tx.holds[i].Active {
			h := tx.holds[i]
			return &h, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (tx *slotTx) LatestHold(_ context.Context, userID int64) (*domain.Hold, error) {
	for i := len(tx.holds) - 1; i >= 0; i-- {
		if tx.holds[i].UserID == userID {
			h := tx.holds[i]
			return &h, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (tx *slotTx) InsertHold(_ context.Context, h *domain.Hold) error {
	for _, cur := range tx.holds {
		if cur.Active {
			return repository.ErrConflict
		}
	}
	tx.holds = append(tx.holds, *h)
	return nil
}

func (tx *slotTx) ReleaseHold(_ context.Context, holdID uuid.UUID, reason domain.ReleaseReason, at time.Time) error {
	for i := range tx.holds {
		h := &tx.holds[i]
		if h.ID == holdID && h.Active {
			ts := at
			h.Active = false
			h.ReleasedAt = &ts
			h.ReleaseReason = reason
			return nil
		}
	}
	return repository.ErrNotFound
}

func (tx *slotTx) InsertTicket(_ context.Context, t *domain.Ticket) error {
	if tx.ticket != nil {
		return repository.ErrConflict
	}
	cp := *t
	tx.ticket = &cp
	return nil
}
