package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
)

// AppConfig holds the ambient runtime configuration for the daemon.
type AppConfig struct {
	// LogLevel controls logging verbosity ("debug", "info", "warn", "error").
	// Default: "info"
	LogLevel string

	// LogFormat selects the logger output ("json", "text", "dev").
	// Default: "json"
	LogFormat string

	// HTTPAddr is the listen address for the health and metrics endpoints.
	// Default: ":8080"
	HTTPAddr string

	// GRPCAddr is the listen address for the grpc.health.v1 server.
	// Default: ":9090"
	GRPCAddr string

	// PoliciesPath points at an optional resilience policy file.
	// When empty, built-in defaults apply.
	PoliciesPath string

	// RedisURL enables the Redis health snapshot publisher when set.
	// Format: "redis://host:port/db". Default: "" (disabled)
	RedisURL string

	// SnapshotInterval is how often health snapshots are published to Redis.
	// Default: 15 seconds
	SnapshotInterval time.Duration

	// HealthWindow is the number of recent outcomes per component used for
	// the rolling failure rate. Default: 10
	HealthWindow int

	// DegradedThreshold is the failure rate at which a component counts as
	// degraded. Default: 0.2
	DegradedThreshold float64

	// UnhealthyThreshold is the failure rate at which a component counts as
	// unhealthy. Default: 0.5
	UnhealthyThreshold float64
}

// FromEnv loads application configuration from environment variables.
// Returns a config with defaults if environment variables are not set.
func FromEnv() (*AppConfig, error) {
	config := &AppConfig{
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnvOrDefault("GRPC_ADDR", ":9090"),
		PoliciesPath:       os.Getenv("RESILIENCE_POLICIES"),
		RedisURL:           os.Getenv("REDIS_URL"),
		SnapshotInterval:   getEnvDuration("SNAPSHOT_INTERVAL", 15*time.Second),
		HealthWindow:       getEnvInt("HEALTH_WINDOW", 10),
		DegradedThreshold:  getEnvFloat("HEALTH_DEGRADED_THRESHOLD", 0.2),
		UnhealthyThreshold: getEnvFloat("HEALTH_UNHEALTHY_THRESHOLD", 0.5),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *AppConfig) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	switch c.LogFormat {
	case "json", "text", "dev":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of json, text, dev")
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR cannot be empty")
	}

	if c.GRPCAddr == "" {
		return fmt.Errorf("GRPC_ADDR cannot be empty")
	}

	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive")
	}

	if c.HealthWindow <= 0 {
		return fmt.Errorf("HEALTH_WINDOW must be positive")
	}

	if c.DegradedThreshold <= 0 || c.DegradedThreshold > 1 {
		return fmt.Errorf("HEALTH_DEGRADED_THRESHOLD must be between 0.0 and 1.0")
	}

	if c.UnhealthyThreshold <= 0 || c.UnhealthyThreshold > 1 {
		return fmt.Errorf("HEALTH_UNHEALTHY_THRESHOLD must be between 0.0 and 1.0")
	}

	if c.DegradedThreshold > c.UnhealthyThreshold {
		return fmt.Errorf("HEALTH_DEGRADED_THRESHOLD must not exceed HEALTH_UNHEALTHY_THRESHOLD")
	}

	return nil
}

// HealthConfig converts the ambient health knobs into a monitor
// configuration. A policy file, when present, takes precedence over these.
func (c *AppConfig) HealthConfig() health.Config {
	return health.Config{
		WindowSize:         c.HealthWindow,
		DegradedThreshold:  c.DegradedThreshold,
		UnhealthyThreshold: c.UnhealthyThreshold,
	}
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses integer environment variable with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat parses float environment variable with default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration parses duration environment variable with default.
// Supports formats like "30s", "1m", "2h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
