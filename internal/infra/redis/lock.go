package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"paygate/internal/domain"
)

const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker is a single-instance lease lock. Each holder gets a random
// token and only that token can release the lease; otherwise it expires.
type RedisLocker struct {
	cli     Client
	retries int
	backoff time.Duration
}

func NewLocker(cli Client) *RedisLocker {
	return &RedisLocker{cli: cli, retries: 3, backoff: 100 * time.Millisecond}
}

// TryLock acquires key for ttl, retrying briefly while another holder owns
// it. It returns domain.ErrLockHeld when the lease stays taken.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(l.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}
		ok, err := l.cli.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return token, nil
		}
		lastErr = nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrLockHeld
}

// Unlock releases key if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.Eval(ctx, releaseIfOwner, []string{key}, token)
	return err
}
