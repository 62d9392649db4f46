package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker owns the lock.
var ErrLockHeld = errors.New("shared: lock held by another worker")

// DepreciationLockKey builds the redis key guarding a depreciation batch.
func DepreciationLockKey(tenantID, companyID int64, period string) string {
	return fmt.Sprintf("ledger:depreciation:%d:%d:%s:lock", tenantID, companyID, period)
}

// IntegrityLockKey builds the redis key guarding a ledger integrity sweep.
func IntegrityLockKey() string {
	return "ledger:integrity:lock"
}

// Locker takes short-lived redis locks for scheduler critical sections.
type Locker struct {
	client redis.UniversalClient
}

// NewLocker constructs a Locker.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a held lock.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire sets key with a random token for ttl, or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it has not expired and been taken by someone else.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	return releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err()
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lk, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
