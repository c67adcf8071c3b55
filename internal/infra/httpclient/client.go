// Package httpclient wraps outbound HTTP calls in the resilience stack.
//
// Each request runs under a registry component derived from the target host,
// so one flaky job board trips its own circuit without affecting the others.
// A client-side token bucket spaces out attempts, and non-2xx responses are
// decoded into classify.StatusError so the retry engine sees the status code
// and any Retry-After hint instead of an opaque message.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/classify"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// Config holds the configuration for a guarded HTTP client.
type Config struct {
	// Component names the registry component all requests run under.
	// Empty means per-host naming: "scraper.<host>".
	Component string

	// Timeout is the per-attempt request timeout, applied when HTTPClient
	// is not supplied. Default: 10s
	Timeout time.Duration

	// RequestsPerSecond is the sustained client-side request rate shared
	// across all hosts this client talks to. Default: 2.0
	RequestsPerSecond float64

	// Burst is the token bucket capacity. Default: 5
	Burst int

	// UserAgent is sent on requests created by Get. Default: "JobSentinel/1.0"
	UserAgent string

	// Retry is the retry policy for each request. Default: retry.JobBoardConfig()
	Retry retry.Config

	// Breaker is the breaker policy for components this client creates.
	// Default: circuitbreaker.JobBoardConfig()
	Breaker circuitbreaker.Config

	// HTTPClient overrides the underlying client. Default: &http.Client{Timeout: Timeout}
	HTTPClient *http.Client
}

// Client is an outbound HTTP client guarded by the resilience registry.
type Client struct {
	registry *resilience.Registry
	http     *http.Client
	limiter  *rate.Limiter
	cfg      Config
}

// New creates a guarded client. Zero-valued config fields are replaced with
// defaults.
func New(reg *resilience.Registry, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2.0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "JobSentinel/1.0"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.JobBoardConfig()
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = circuitbreaker.JobBoardConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		registry: reg,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:      cfg,
	}
}

// Get issues a guarded GET request to the given URL.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return c.Do(req)
}

// Do executes the request under the target host's component: the limiter is
// waited on before every attempt, the breaker is consulted, and failures are
// retried per the client's policy. Responses with status >= 400 are drained,
// closed and returned as a *classify.StatusError carrying the Retry-After
// hint; the caller owns the body of any response returned without error.
//
// Requests with a body are retried only when GetBody is set (http.NewRequest
// populates it for common body types); otherwise the request gets a single
// attempt.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	component := c.cfg.Component
	if component == "" {
		component = "scraper." + req.URL.Hostname()
	}

	retryCfg := c.cfg.Retry
	if req.Body != nil && req.GetBody == nil {
		retryCfg.MaxAttempts = 1
	}

	return resilience.Invoke(req.Context(), c.registry, component, func(ctx context.Context) (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("replay request body: %w", err)
			}
			attempt.Body = body
		}

		resp, err := c.http.Do(attempt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, statusError(resp)
		}
		return resp, nil
	},
		resilience.WithOperation(strings.ToLower(req.Method)),
		resilience.WithRetry(retryCfg),
		resilience.WithBreaker(c.cfg.Breaker))
}

// statusError converts a failed response into a classify.StatusError. The
// body is drained and closed so the transport can reuse the connection for
// the retry.
func statusError(resp *http.Response) *classify.StatusError {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return &classify.StatusError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form. Absent, malformed or already-elapsed values return 0.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
