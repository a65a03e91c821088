package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	sessions map[int64]domain.Session
	calls    int
}

func (s *countingSource) GetSession(_ context.Context, id int64) (*domain.Session, error) {
	s.calls++
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *countingSource) GetPromoCode(context.Context, string) (*domain.PromoCode, error) {
	s.calls++
	return nil, repository.ErrNotFound
}

func testSession() domain.Session {
	return domain.Session{
		ID:         3,
		MovieID:    1,
		HallID:     2,
		Capacity:   80,
		StartsAt:   time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC),
		PriceCents: 1250,
		IsActive:   true,
	}
}

func TestCachedCatalogGetSession(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()

	sess := testSession()
	src := &countingSource{sessions: map[int64]domain.Session{sess.ID: sess}}
	cat := NewCachedCatalog(src, New(rdb), time.Minute)

	payload, err := json.Marshal(sess)
	require.NoError(t, err)
	key := KeySessionSummary(sess.ID)

	// miss: both lookups fail, the source is read and the value is stored
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(payload), time.Minute).SetVal("OK")

	got, err := cat.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, *got)

	// hit
	mock.ExpectGet(key).SetVal(string(payload))

	got, err = cat.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, *got)

	assert.Equal(t, 1, src.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedCatalogDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()

	src := &countingSource{}
	cat := NewCachedCatalog(src, New(rdb), time.Minute)

	key := KeyPromoCode("NOPE")
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()

	_, err := cat.GetPromoCode(ctx, "NOPE")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedCatalogSurvivesRedisFailure(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()

	sess := testSession()
	src := &countingSource{sessions: map[int64]domain.Session{sess.ID: sess}}
	cat := NewCachedCatalog(src, New(rdb), time.Minute)

	payload, err := json.Marshal(sess)
	require.NoError(t, err)
	key := KeySessionSummary(sess.ID)
	down := errors.New("connection refused")

	mock.ExpectGet(key).SetErr(down)
	mock.ExpectGet(key).SetErr(down)
	mock.ExpectSet(key, string(payload), time.Minute).SetErr(down)

	got, err := cat.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Capacity, got.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilCacheCallsLoader(t *testing.T) {
	sess := testSession()
	src := &countingSource{sessions: map[int64]domain.Session{sess.ID: sess}}
	cat := NewCachedCatalog(src, nil, 0)

	for range 2 {
		_, err := cat.GetSession(context.Background(), sess.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, src.calls)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectDel(KeySessionSummary(9)).SetVal(1)
	mock.ExpectDel(KeyPromoCode("SPRING")).SetVal(0)

	require.NoError(t, c.InvalidateSession(ctx, 9))
	require.NoError(t, c.InvalidatePromoCode(ctx, "SPRING"))
	assert.NoError(t, mock.ExpectationsWereMet())

	var none *Cache
	assert.NoError(t, none.InvalidateSession(ctx, 9))
}
