package resilience

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/metrics"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

const tracerName = "github.com/cboyd0319/JobSentinel-sub005/internal/resilience"

// Registry owns one circuit breaker and one health record per component
// name, created lazily on first use and kept for the process lifetime.
// It is the composition point for the resilience subpackages: construct one
// at startup and pass it to every collaborator that protects calls.
type Registry struct {
	logger   *slog.Logger
	metrics  metrics.Observer
	tracer   trace.Tracer
	clock    circuitbreaker.Clock
	observer func(RecoveryAttempt)

	defaultRetry   retry.Config
	defaultBreaker circuitbreaker.Config
	healthCfg      health.Config
	monitor        *health.Monitor

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Breaker
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for invocation and breaker events.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics observer. Default: NoOpObserver
func WithMetrics(observer metrics.Observer) Option {
	return func(r *Registry) {
		if observer != nil {
			r.metrics = observer
		}
	}
}

// WithTracer sets the tracer used for invocation spans. Default: the global
// otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

// WithClock sets the time source shared by breakers and health tracking.
// Default: SystemClock
func WithClock(clock circuitbreaker.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithDefaultRetry sets the retry policy applied when a call passes no
// per-call override. Default: retry.DefaultConfig()
func WithDefaultRetry(cfg retry.Config) Option {
	return func(r *Registry) {
		r.defaultRetry = cfg
	}
}

// WithDefaultBreaker sets the breaker configuration template applied to
// components created without a per-call override. The component name always
// replaces cfg.Name.
func WithDefaultBreaker(cfg circuitbreaker.Config) Option {
	return func(r *Registry) {
		r.defaultBreaker = cfg
	}
}

// WithHealthConfig sets the health monitor configuration.
// Default: health.DefaultConfig()
func WithHealthConfig(cfg health.Config) Option {
	return func(r *Registry) {
		r.healthCfg = cfg
	}
}

// WithRecoveryObserver registers a callback receiving a RecoveryAttempt for
// every retried failure and every terminal invocation outcome. The callback
// runs inline on the calling goroutine and must not block.
func WithRecoveryObserver(fn func(RecoveryAttempt)) Option {
	return func(r *Registry) {
		r.observer = fn
	}
}

// New creates a Registry. All dependencies default to process-wide
// implementations (slog.Default, no-op metrics, the global tracer provider,
// the system clock), so resilience.New() is usable as-is.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:         slog.Default(),
		metrics:        metrics.NewNoOpObserver(),
		clock:          &circuitbreaker.SystemClock{},
		defaultRetry:   retry.DefaultConfig(),
		defaultBreaker: circuitbreaker.Config{},
		healthCfg:      health.DefaultConfig(),
		breakers:       make(map[string]*circuitbreaker.Breaker),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	if r.healthCfg.Clock == nil {
		r.healthCfg.Clock = r.clock
	}
	r.monitor = health.New(r.healthCfg)

	return r
}

// breakerFor returns the breaker for a component, creating and binding it on
// first use. The breaker configuration is fixed at creation: an override is
// honored only on the call that creates the breaker, later differing
// overrides for the same component are ignored.
func (r *Registry) breakerFor(component string, override *circuitbreaker.Config) *circuitbreaker.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[component]; ok {
		return b
	}

	cfg := r.defaultBreaker
	if override != nil {
		cfg = *override
	}
	cfg.Name = component
	if cfg.Clock == nil {
		cfg.Clock = r.clock
	}

	chained := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		r.metrics.RecordCircuitTransition(name, from.String(), to.String())
		if chained != nil {
			chained(name, from, to)
		}
	}

	b := circuitbreaker.New(cfg)
	r.breakers[component] = b
	r.monitor.BindCircuit(component, b.State)
	r.metrics.RecordCircuitState(component, b.State().String())

	return b
}

// Breaker returns the circuit breaker for a component, creating it with the
// registry defaults if it does not exist yet.
func (r *Registry) Breaker(component string) *circuitbreaker.Breaker {
	return r.breakerFor(component, nil)
}

// BreakerWithConfig returns the circuit breaker for a component, creating it
// with cfg if it does not exist yet. Guards call this at construction to pin
// their component's breaker policy before the first invocation races for it.
func (r *Registry) BreakerWithConfig(component string, cfg circuitbreaker.Config) *circuitbreaker.Breaker {
	return r.breakerFor(component, &cfg)
}

// Health returns the registry's health monitor.
func (r *Registry) Health() *health.Monitor {
	return r.monitor
}

// Snapshot returns the current health of every tracked component, keyed by
// component name.
func (r *Registry) Snapshot() map[string]health.ComponentHealth {
	return r.monitor.Report()
}

func (r *Registry) observeRecovery(ra RecoveryAttempt) {
	if r.observer != nil {
		r.observer(ra)
	}
}
