package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"paygate/internal/config"
)

// Client is the subset of Redis used for token caching, rate limiting and
// job locks. Scripts keep multi-step updates atomic on the server.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	Close() error
}

var _ Client = (*goRedis)(nil)

type goRedis struct {
	cli *redis.Client
}

// NewClient connects and pings. cfg.URL accepts either a redis:// URL or a
// bare host:port, in which case password and db come from cfg.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	return &goRedis{cli: c}, nil
}

func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if opts.Password == "" {
			opts.Password = cfg.Password
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}, nil
}

func (g *goRedis) Get(ctx context.Context, key string) (string, error) {
	return g.cli.Get(ctx, key).Result()
}

func (g *goRedis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.cli.Set(ctx, key, value, ttl).Err()
}

func (g *goRedis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return g.cli.SetNX(ctx, key, value, ttl).Result()
}

func (g *goRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.cli.Eval(ctx, script, keys, args...).Result()
}

func (g *goRedis) Close() error { return g.cli.Close() }
