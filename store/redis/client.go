// Package redis caches price snapshots and guards executions with a cooldown
// lock, backed by go-redis.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client and namespaces every key with a prefix.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New connects to cfg.Addr and pings it before returning.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: address is not set")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb, prefix: strings.TrimSuffix(cfg.Prefix, ":")}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}
