package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiterAllow(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()

	l := NewSlidingWindowLimiter(rdb, "seats", 2, time.Minute)
	l.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	sha := redis.NewScript(luaSlidingWindow).Hash()
	key := KeyRateLimit("seats", "42")

	// The member is random, so only the key and the fixed arguments are checked.
	mock.CustomMatch(func(_, actual []any) error {
		if len(actual) < 8 {
			return errors.New("short evalsha")
		}
		if actual[1] != sha || actual[3] != key {
			return errors.New("unexpected script or key")
		}
		if actual[4] != int64(1_700_000_000_000) || actual[5] != int64(60_000) || actual[6] != 2 {
			return errors.New("unexpected arguments")
		}
		return nil
	}).ExpectEvalSha(sha, []string{key}).SetVal([]any{int64(1), int64(1), int64(0)})

	ok, n, retry, err := l.Allow(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, retry)

	mock.CustomMatch(func(_, _ []any) error { return nil }).
		ExpectEvalSha(sha, []string{key}).
		SetVal([]any{int64(0), int64(3), int64(12_500)})

	ok, n, retry, err = l.Allow(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 12500*time.Millisecond, retry)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	var nilLimiter *SlidingWindowLimiter
	ok, _, _, err := nilLimiter.Allow(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)

	rdb, mock := redismock.NewClientMock()
	ok, _, _, err = NewSlidingWindowLimiter(rdb, "seats", 0, time.Minute).Allow(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet(), "no redis round trip")
}

func TestToInt(t *testing.T) {
	assert.Equal(t, int64(5), toInt(int64(5)))
	assert.Equal(t, int64(5), toInt(5))
	assert.Equal(t, int64(5), toInt(float64(5)))
	assert.Equal(t, int64(5), toInt("5"))
	assert.Zero(t, toInt(nil))
}
