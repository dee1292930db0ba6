package redis

import (
	"context"
	"fmt"
	"time"
)

// fixedWindow increments the counter and starts its window on the first hit
// in one round trip, so a crash between the two can't leave a key without TTL.
const fixedWindow = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	cli Client
}

func NewRateLimiter(cli Client) *RateLimiter {
	return &RateLimiter{cli: cli}
}

// Allow reports whether the request identified by key fits within limit for
// the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := r.cli.Eval(ctx, fixedWindow, []string{key}, window.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("rate limit %s: unexpected reply %T", key, res)
	}
	return n <= int64(limit), nil
}

// InitiateKey scopes initiation limits by provider and client address.
func InitiateKey(clientIP, provider string) string {
	return fmt.Sprintf("ratelimit:initiate:%s:%s", provider, clientIP)
}
