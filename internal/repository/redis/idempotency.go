package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemNS = ns + ":idem"

	idemLock   = "LOCK"
	idemResult = "RES:"
)

var (
	// ErrIdempotencyInProgress is returned by Begin while another request
	// with the same key is still running.
	ErrIdempotencyInProgress = errors.New("idempotency key in progress")
	// ErrIdempotencyKeyReused is returned by Begin when the key completed for
	// a request with a different fingerprint.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different request")
)

// KeyIdem scopes a client-supplied Idempotency-Key to one action, session
// and user so that keys cannot collide across callers.
func KeyIdem(action string, sessionID, userID int64, idemKey string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", idemNS, action, sessionID, userID, idemKey)
}

// Fingerprint identifies a request body so that a key cannot replay the
// response of a different request.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:16])
}

// IdempotencyStore remembers the response of a mutating request. A key holds
// a lock marker while the first request runs and, once it has succeeded, the
// request fingerprint followed by the JSON response.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore keeps stored responses for ttl.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Begin claims key for the caller.
//
// Parameters:
//   - ctx: request-scoped context.
//   - key: a key built by KeyIdem.
//   - fingerprint: Fingerprint of the request body.
//   - lockTTL: how long the claim survives a caller that never completes.
//
// Returns:
//   - replay: the stored response when the key already completed.
//   - started: true if the caller now owns the key and must Complete or Abort it.
//   - err: ErrIdempotencyInProgress if another caller owns the key.
//   - err: ErrIdempotencyKeyReused if the key completed for another fingerprint.
func (s *IdempotencyStore) Begin(
	ctx context.Context,
	key, fingerprint string,
	lockTTL time.Duration,
) (replay string, started bool, err error) {
	const op = "redisrepo.IdempotencyStore.Begin"

	ok, err := s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return "", true, nil
	}

	v, err := s.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// The owner aborted between both calls.
		return "", false, fmt.Errorf("%s: %w", op, ErrIdempotencyInProgress)
	case err != nil:
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	if res, ok := strings.CutPrefix(v, idemResult); ok {
		stored, payload, _ := strings.Cut(res, ":")
		if stored != fingerprint {
			return "", false, fmt.Errorf("%s: %w", op, ErrIdempotencyKeyReused)
		}
		return payload, false, nil
	}

	return "", false, fmt.Errorf("%s: %w", op, ErrIdempotencyInProgress)
}

// Complete stores payload as the response for key and fingerprint.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint, payload string) error {
	return s.rdb.Set(ctx, key, idemResult+fingerprint+":"+payload, s.ttl).Err()
}

// Abort frees key so that the request can be retried.
func (s *IdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
