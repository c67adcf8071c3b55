// Command sentineld hosts the operational surface of the resilience core:
// the HTTP health report and metrics endpoints, the grpc.health.v1 server,
// and the optional Redis snapshot publisher for external observers.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cboyd0319/JobSentinel-sub005/internal/config"
	hgrpc "github.com/cboyd0319/JobSentinel-sub005/internal/handler/grpc"
	hhttp "github.com/cboyd0319/JobSentinel-sub005/internal/handler/http"
	"github.com/cboyd0319/JobSentinel-sub005/internal/infra/db"
	"github.com/cboyd0319/JobSentinel-sub005/internal/infra/httpclient"
	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/logging"
	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/metrics"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
	"github.com/cboyd0319/JobSentinel-sub005/internal/snapshot"
)

func main() {
	// .env is optional; running without one is the normal production case.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := metrics.NewPrometheusObserver()
	reg, policies := setupRegistry(cfg, logger, observer)

	checkers, closeCheckers := setupCheckers(ctx, logger, reg, policies)
	defer closeCheckers()

	publisher, closePublisher := setupPublisher(ctx, cfg, logger, reg)
	defer closePublisher()

	healthHandler := &hhttp.HealthHandler{
		Registry: reg,
		Version:  getVersion(),
		Checkers: checkers,
		Logger:   logger,
	}

	httpServer := hhttp.NewServer(cfg.HTTPAddr, healthHandler, observer.Registry(), logger)
	grpcServer := hgrpc.NewServer(cfg.GRPCAddr, hgrpc.NewHealthServer(reg, 0, logger), logger)

	if err := runServers(ctx, logger, httpServer, grpcServer, publisher); err != nil {
		logger.Error("daemon failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}

// initLogger builds the process logger per LOG_FORMAT and installs it as the
// slog default.
func initLogger(cfg *config.AppConfig) *slog.Logger {
	var logger *slog.Logger
	switch cfg.LogFormat {
	case "text":
		logger = logging.NewTextLogger()
	case "dev":
		logger = logging.NewDevLogger()
	default:
		logger = logging.NewLogger()
	}
	slog.SetDefault(logger)
	return logger
}

// setupRegistry builds the resilience registry from the policy file when one
// is configured, falling back to the ambient env knobs otherwise.
func setupRegistry(cfg *config.AppConfig, logger *slog.Logger, observer *metrics.PrometheusObserver) (*resilience.Registry, *config.Policies) {
	opts := []resilience.Option{
		resilience.WithLogger(logger),
		resilience.WithMetrics(observer),
	}

	var policies *config.Policies
	if cfg.PoliciesPath != "" {
		loaded, err := config.LoadPolicies(cfg.PoliciesPath)
		if err != nil {
			logger.Error("failed to load resilience policies", slog.Any("error", err))
			os.Exit(1)
		}
		policies = loaded
		opts = append(opts, policies.Options()...)
		logger.Info("resilience policies loaded",
			slog.String("path", cfg.PoliciesPath),
			slog.Int("components", len(policies.Resilience.Components)))
	} else {
		opts = append(opts, resilience.WithHealthConfig(cfg.HealthConfig()))
	}

	reg := resilience.New(opts...)
	if policies != nil {
		policies.Preconfigure(reg)
	}
	return reg, policies
}

// setupCheckers wires the optional active probes: a guarded database ping
// when DATABASE_URL is set and an outbound probe per PROBE_URLS entry. Both
// run through the registry, so probe outcomes feed the same component
// records as live traffic.
func setupCheckers(ctx context.Context, logger *slog.Logger, reg *resilience.Registry, policies *config.Policies) ([]hhttp.Checker, func()) {
	var checkers []hhttp.Checker
	cleanup := func() {}

	if os.Getenv("DATABASE_URL") != "" {
		database, err := db.Open(ctx)
		if err != nil {
			logger.Warn("database probe disabled", slog.Any("error", err))
		} else {
			guard := newGuard(database, reg, policies)
			checkers = append(checkers, hhttp.Checker{Name: db.Component, Check: guard.PingContext})
			cleanup = func() {
				if err := database.Close(); err != nil {
					logger.Error("failed to close database", slog.Any("error", err))
				}
			}
			logger.Info("database probe enabled")
		}
	}

	probes := loadProbeCheckers(logger, reg)
	if len(probes) > 0 {
		checkers = append(checkers, probes...)
		logger.Info("outbound probes enabled", slog.Int("count", len(probes)))
	}

	return checkers, cleanup
}

// newGuard pins the database component's policy from the policy file when one
// is loaded; the database presets apply otherwise.
func newGuard(database *sql.DB, reg *resilience.Registry, policies *config.Policies) *db.Guard {
	if policies == nil {
		return db.NewGuard(database, reg)
	}
	return db.NewGuardWithConfig(database, reg,
		policies.RetryConfig(db.Component),
		policies.BreakerConfig(db.Component))
}

// loadProbeCheckers reads PROBE_URLS, a comma-separated list of endpoints
// probed on every health request (e.g. job board landing pages). Probes run
// under the scraper.<host> component via the guarded HTTP client.
//
// The retry budget is kept inside the health handler's checker timeout, so a
// dead board reports unhealthy instead of eating the whole request.
func loadProbeCheckers(logger *slog.Logger, reg *resilience.Registry) []hhttp.Checker {
	raw := os.Getenv("PROBE_URLS")
	if raw == "" {
		return nil
	}

	client := httpclient.New(reg, httpclient.Config{
		Timeout: 3 * time.Second,
		Retry: retry.Config{
			MaxAttempts: 2,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    time.Second,
		},
	})

	var checkers []hhttp.Checker
	for _, entry := range strings.Split(raw, ",") {
		target := strings.TrimSpace(entry)
		if target == "" {
			continue
		}

		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			logger.Warn("skipping invalid probe URL", slog.String("url", target))
			continue
		}

		checkers = append(checkers, hhttp.Checker{
			Name:  "scraper." + u.Hostname(),
			Check: probeCheck(client, target),
		})
	}
	return checkers
}

// probeCheck builds a checker that fetches the target and discards the body.
func probeCheck(client *httpclient.Client, target string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		resp, err := client.Get(ctx, target)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	}
}

// setupPublisher creates the Redis snapshot publisher when REDIS_URL is set.
// An unreachable Redis disables publishing rather than blocking startup.
func setupPublisher(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, reg *resilience.Registry) (*snapshot.Publisher, func()) {
	if cfg.RedisURL == "" {
		logger.Info("snapshot publisher disabled")
		return nil, func() {}
	}

	rdb, err := snapshot.NewClient(ctx, snapshot.ClientConfig{URL: cfg.RedisURL})
	if err != nil {
		logger.Warn("snapshot publisher disabled", slog.Any("error", err))
		return nil, func() {}
	}

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}

	publisher := snapshot.NewPublisher(rdb, reg, snapshot.Config{
		Interval: cfg.SnapshotInterval,
		Logger:   logger,
	})
	logger.Info("snapshot publisher initialized", slog.Duration("interval", cfg.SnapshotInterval))
	return publisher, cleanup
}

// runServers runs the HTTP surface, the gRPC surface, and the publisher until
// a signal arrives or one of them fails. A single failure tears the rest down
// through the shared group context.
func runServers(ctx context.Context, logger *slog.Logger, httpServer *hhttp.Server, grpcServer *hgrpc.Server, publisher *snapshot.Publisher) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return grpcServer.Start(ctx)
	})

	if publisher != nil {
		g.Go(func() error {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	httpServer.SetReady(true)
	logger.Info("daemon started")

	return g.Wait()
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}
