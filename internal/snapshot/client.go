package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds the Redis connection settings for the publisher.
type ClientConfig struct {
	// URL is a redis:// connection string.
	// Default: "redis://localhost:6379/0"
	URL string

	// DialTimeout bounds connection establishment and the startup ping.
	// Default: 5s
	DialTimeout time.Duration
}

// NewClient connects to Redis and verifies the connection with a ping, so a
// misconfigured address fails at startup instead of on the first publish.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379/0"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
