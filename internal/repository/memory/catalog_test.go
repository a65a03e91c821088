package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	hallID, err := c.CreateHall(ctx, "Hall A", 120)
	require.NoError(t, err)

	_, err = c.CreateHall(ctx, "Hall A", 50)
	assert.ErrorIs(t, err, repository.ErrConflict)

	movieID, err := c.CreateMovie(ctx, "Metropolis", 153)
	require.NoError(t, err)

	_, err = c.CreateSession(ctx, movieID, 999, t0, 1000)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	sessionID, err := c.CreateSession(ctx, movieID, hallID, t0, 1000)
	require.NoError(t, err)

	s, err := c.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 120, s.Capacity)
	assert.True(t, s.IsActive)

	require.NoError(t, c.SetSessionActive(ctx, sessionID, false))
	s, err = c.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)

	assert.ErrorIs(t, c.SetSessionActive(ctx, 999, true), repository.ErrNotFound)

	p := domain.PromoCode{Code: "X", IsActive: true, StartsAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, c.CreatePromoCode(ctx, p))
	assert.ErrorIs(t, c.CreatePromoCode(ctx, p), repository.ErrConflict)

	got, err := c.GetPromoCode(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	_, err = c.GetPromoCode(ctx, "Y")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
