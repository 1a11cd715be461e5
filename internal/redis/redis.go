package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"promptrelay/internal/config"
)

const dialCheckTimeout = 3 * time.Second

var (
	// ErrDisabled is returned when no redis address is configured.
	ErrDisabled = errors.New("redis disabled")
	// ErrCacheMiss is returned by Get for absent or expired keys.
	ErrCacheMiss = goredis.Nil

	errNotReady = errors.New("redis client not initialized")
)

// Client is the shared cache connection used for statistics and model lists.
// A nil *Client is safe to call and reports errNotReady.
type Client struct {
	rdb *goredis.Client
}

// NewRedisClient dials the configured server and verifies it answers PING.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("invalid redis addr %q: %w", cfg.Addr, err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialCheckTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) ready() error {
	if c == nil || c.rdb == nil {
		return errNotReady
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.rdb.Get(ctx, key).Result()
}

// Set stores value under key; a zero ttl keeps the key until it is deleted.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool. Closing a nil client is a no-op.
func (c *Client) Close() error {
	if c.ready() != nil {
		return nil
	}
	return c.rdb.Close()
}
