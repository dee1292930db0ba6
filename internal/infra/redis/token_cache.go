package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/infra/metrics"
)

var _ adapter.TokenCache = (*TokenCache)(nil)

// TokenCache keeps provider session tokens until shortly before they expire.
type TokenCache struct {
	cli Client
	log *zerolog.Logger
}

func NewTokenCache(cli Client, logger *zerolog.Logger) *TokenCache {
	l := logger.With().Str("component", "TokenCache").Logger()
	return &TokenCache{cli: cli, log: &l}
}

func tokenKey(p model.Provider) string { return fmt.Sprintf("gateway:token:%s", p) }

func (c *TokenCache) GetToken(ctx context.Context, p model.Provider) (string, bool) {
	v, err := c.cli.Get(ctx, tokenKey(p))
	if err == nil && v != "" {
		metrics.IncTokenCache(string(p), true)
		return v, true
	}
	if err != nil && err != redis.Nil {
		c.log.Warn().Err(err).Str("provider", string(p)).Msg("token cache read failed")
	}
	metrics.IncTokenCache(string(p), false)
	return "", false
}

// PutToken stores token for ttlSeconds minus a 60s safety margin. Tokens that would
// live less than that are not cached.
func (c *TokenCache) PutToken(ctx context.Context, p model.Provider, token string, ttlSeconds int64) {
	ttl := time.Duration(ttlSeconds-60) * time.Second
	if ttl <= 0 || token == "" {
		return
	}
	if err := c.cli.Set(ctx, tokenKey(p), token, ttl); err != nil {
		c.log.Warn().Err(err).Str("provider", string(p)).Msg("token cache write failed")
	}
}
