// Command healthwatch polls the daemon's /health endpoint on a cron schedule
// and logs per-component status transitions, turning the pull-based report
// into an event stream for a terminal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/logging"
)

const (
	defaultHealthURL = "http://localhost:8080/health"
	defaultSchedule  = "* * * * *"
)

func main() {
	// .env is optional; running without one is the normal production case.
	_ = godotenv.Load()

	logger := logging.NewDevLogger()
	slog.SetDefault(logger)

	target := getEnvOrDefault("HEALTH_URL", defaultHealthURL)
	schedule := getEnvOrDefault("HEALTHWATCH_SCHEDULE", defaultSchedule)
	timeout := getEnvDuration("HEALTHWATCH_TIMEOUT", 10*time.Second)

	watch := newWatcher(target, timeout, logger)

	c := cron.New()
	if _, err := c.AddFunc(schedule, watch.poll); err != nil {
		logger.Error("invalid HEALTHWATCH_SCHEDULE",
			slog.String("schedule", schedule),
			slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Poll once up front instead of waiting out the first schedule slot.
	watch.poll()
	c.Start()
	logger.Info("healthwatch started",
		slog.String("url", target),
		slog.String("schedule", schedule))

	<-ctx.Done()
	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("healthwatch stopped")
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses duration environment variable with default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
