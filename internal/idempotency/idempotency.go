// Package idempotency guards buyer-facing HTTP retries with redis-backed
// keys. This is distinct from protocol message dedup: the key is supplied by
// the caller per request, locked while the request is in flight, and the
// final response is cached so an identical retry replays it.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	// ErrInFlight rejects a request whose key is locked by an unfinished
	// earlier attempt. Callers must retry later, never double-execute.
	ErrInFlight = errors.New("idempotency_key_in_flight")

	ErrNotConfigured = errors.New("idempotency store not configured")
)

// Locker is a single-winner lock per idempotency key. The token returned by
// TryLock must be presented on Release so an expired holder cannot delete a
// successor's lock.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrNotConfigured
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{lockKey(key)}, token).Err()
}

// Store couples the lock with the cached final response.
type Store struct {
	locker *Locker
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		return nil
	}
	return &Store{
		locker: NewLocker(client),
		client: client,
		ttl:    ttl,
	}
}

// Begin returns the cached response when the key already completed, a release
// token when this caller won the lock, or ErrInFlight when another attempt
// holds it.
func (s *Store) Begin(ctx context.Context, key string) (cached []byte, token string, err error) {
	if s == nil || s.client == nil {
		return nil, "", ErrNotConfigured
	}

	val, err := s.client.Get(ctx, responseKey(key)).Bytes()
	if err == nil {
		return val, "", nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, "", err
	}

	token, ok, err := s.locker.TryLock(ctx, key, s.ttl)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrInFlight
	}
	return nil, token, nil
}

// Complete caches the final response and releases the lock.
func (s *Store) Complete(ctx context.Context, key, token string, response []byte) error {
	if s == nil || s.client == nil {
		return ErrNotConfigured
	}
	if err := s.client.Set(ctx, responseKey(key), response, s.ttl).Err(); err != nil {
		return err
	}
	return s.locker.Release(ctx, key, token)
}

// Abort releases the lock without caching anything, so the caller may retry.
func (s *Store) Abort(ctx context.Context, key, token string) error {
	if s == nil {
		return nil
	}
	return s.locker.Release(ctx, key, token)
}

func lockKey(key string) string     { return "idem:lock:" + key }
func responseKey(key string) string { return "idem:resp:" + key }
