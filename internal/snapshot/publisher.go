// Package snapshot publishes the health report to Redis on a fixed cadence so
// external observers (dashboards, sibling processes) can read component status
// without calling into this process.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// Snapshot is the JSON document written to Redis on every publish.
type Snapshot struct {
	Status     health.Status                     `json:"status"`
	Timestamp  time.Time                         `json:"timestamp"`
	Components map[string]health.ComponentHealth `json:"components"`
}

// Config holds the configuration for the snapshot publisher.
type Config struct {
	// Key is the Redis key holding the latest snapshot.
	// Default: "jobsentinel:health"
	Key string

	// Channel receives a publish for every refresh so live observers can
	// subscribe instead of polling the key. Default: Key + ":events"
	Channel string

	// Interval is the publish cadence. Default: 15s
	Interval time.Duration

	// TTL expires the key so a stopped publisher reads as absent rather
	// than forever-fresh. Default: 4 * Interval
	TTL time.Duration

	// Retry bounds re-attempts of a single publish cycle.
	// Default: 2 attempts, 100ms base delay, 1s cap.
	Retry retry.Config

	// Logger receives publish failures. Default: slog.Default()
	Logger *slog.Logger
}

// Publisher writes the registry's health report to Redis. One publish cycle
// is a pipelined SET with TTL plus a PUBLISH of the same payload.
type Publisher struct {
	rdb      *redis.Client
	registry *resilience.Registry
	retrier  *retry.Retrier
	cfg      Config
	logger   *slog.Logger
}

// NewPublisher creates a publisher. Zero-value config fields are replaced
// with defaults.
func NewPublisher(rdb *redis.Client, registry *resilience.Registry, cfg Config) *Publisher {
	if cfg.Key == "" {
		cfg.Key = "jobsentinel:health"
	}
	if cfg.Channel == "" {
		cfg.Channel = cfg.Key + ":events"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 4 * cfg.Interval
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Config{
			MaxAttempts: 2,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    time.Second,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Publisher{
		rdb:      rdb,
		registry: registry,
		retrier:  retry.NewRetrier(cfg.Retry),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Run publishes immediately, then on every interval tick, until ctx ends.
// A failed cycle is logged and does not stop the loop; the next tick tries
// again with fresh state.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("snapshot publisher starting",
		slog.String("key", p.cfg.Key),
		slog.String("channel", p.cfg.Channel),
		slog.Duration("interval", p.cfg.Interval))

	if err := p.Publish(ctx); err != nil {
		p.logger.Warn("snapshot publish failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("snapshot publisher stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.logger.Warn("snapshot publish failed", slog.Any("error", err))
			}
		}
	}
}

// Publish writes one snapshot of the current health report.
func (p *Publisher) Publish(ctx context.Context) error {
	snap := Snapshot{
		Status:     p.registry.Health().Overall(),
		Timestamp:  time.Now().UTC(),
		Components: p.registry.Snapshot(),
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return p.retrier.Execute(ctx, func(ctx context.Context) error {
		pipe := p.rdb.Pipeline()
		pipe.Set(ctx, p.cfg.Key, payload, p.cfg.TTL)
		pipe.Publish(ctx, p.cfg.Channel, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		return nil
	})
}
