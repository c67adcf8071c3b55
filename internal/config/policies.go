package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// Policies represents the optional resilience policy file. The defaults
// section applies to every component, component sections override it, and
// zero or missing fields inherit from the level below.
type Policies struct {
	Resilience struct {
		// Defaults apply to every component without an override.
		Defaults ComponentPolicy `yaml:"defaults"`

		// Health tunes the rolling health monitor.
		Health HealthPolicy `yaml:"health"`

		// Components maps component names (e.g. "database",
		// "scraper.greenhouse") to their overrides.
		Components map[string]ComponentPolicy `yaml:"components"`
	} `yaml:"resilience"`
}

// ComponentPolicy bundles the retry and breaker overrides for one component.
// A nil section inherits entirely.
type ComponentPolicy struct {
	Retry   *RetryPolicy   `yaml:"retry"`
	Breaker *BreakerPolicy `yaml:"breaker"`
}

// RetryPolicy mirrors retry.Config in file form. Durations use Go syntax
// ("250ms", "2s").
type RetryPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Strategy       string        `yaml:"strategy"`
	JitterFactor   float64       `yaml:"jitter_factor"`
	RateLimitFloor time.Duration `yaml:"rate_limit_floor"`
}

// BreakerPolicy mirrors circuitbreaker.Config in file form.
type BreakerPolicy struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	SuccessThreshold  int           `yaml:"success_threshold"`
	HalfOpenMaxProbes int           `yaml:"half_open_max_probes"`
	OpenDuration      time.Duration `yaml:"open_duration"`
}

// HealthPolicy mirrors health.Config in file form.
type HealthPolicy struct {
	WindowSize         int     `yaml:"window_size"`
	DegradedThreshold  float64 `yaml:"degraded_threshold"`
	UnhealthyThreshold float64 `yaml:"unhealthy_threshold"`
}

var strategies = map[string]retry.Strategy{
	"fixed":              retry.StrategyFixed,
	"linear":             retry.StrategyLinear,
	"exponential":        retry.StrategyExponential,
	"exponential_jitter": retry.StrategyExponentialJitter,
}

// LoadPolicies loads a resilience policy file from YAML.
// The path parameter is expected to come from a trusted source (command-line argument or environment), not user input.
func LoadPolicies(path string) (*Policies, error) {
	// #nosec G304 -- path is provided by trusted source (CLI arg or config), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicies(data)
}

// ParsePolicies parses and validates raw policy file contents.
func ParsePolicies(data []byte) (*Policies, error) {
	var policies Policies
	if err := yaml.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}

	return &policies, nil
}

// Validate checks every policy section and reports all problems at once.
func (p *Policies) Validate() error {
	errs := p.Resilience.Defaults.validate("resilience.defaults")
	errs = append(errs, p.Resilience.Health.validate()...)

	for _, name := range p.componentNames() {
		if name == "" {
			errs = append(errs, errors.New("resilience.components: component name must not be empty"))
			continue
		}
		policy := p.Resilience.Components[name]
		errs = append(errs, policy.validate("resilience.components."+name)...)
	}

	return errors.Join(errs...)
}

// RetryConfig resolves the retry configuration for a component: built-in
// defaults, overlaid with the defaults section, overlaid with the
// component's own section. Unknown components get the defaults.
func (p *Policies) RetryConfig(component string) retry.Config {
	cfg := p.Resilience.Defaults.Retry.apply(retry.DefaultConfig())
	if policy, ok := p.Resilience.Components[component]; ok {
		cfg = policy.Retry.apply(cfg)
	}
	return cfg
}

// BreakerConfig resolves the breaker configuration for a component the same
// way RetryConfig does.
func (p *Policies) BreakerConfig(component string) circuitbreaker.Config {
	cfg := p.Resilience.Defaults.Breaker.apply(circuitbreaker.DefaultConfig(component))
	if policy, ok := p.Resilience.Components[component]; ok {
		cfg = policy.Breaker.apply(cfg)
	}
	return cfg
}

// HealthConfig resolves the health monitor configuration.
func (p *Policies) HealthConfig() health.Config {
	cfg := health.DefaultConfig()
	h := p.Resilience.Health
	if h.WindowSize > 0 {
		cfg.WindowSize = h.WindowSize
	}
	if h.DegradedThreshold > 0 {
		cfg.DegradedThreshold = h.DegradedThreshold
	}
	if h.UnhealthyThreshold > 0 {
		cfg.UnhealthyThreshold = h.UnhealthyThreshold
	}
	return cfg
}

// Options converts the policy file into registry construction options.
func (p *Policies) Options() []resilience.Option {
	return []resilience.Option{
		resilience.WithDefaultRetry(p.RetryConfig("")),
		resilience.WithDefaultBreaker(p.BreakerConfig("")),
		resilience.WithHealthConfig(p.HealthConfig()),
	}
}

// Preconfigure creates the breaker for every component section that carries
// one, pinning its policy before the first invocation races to create it.
func (p *Policies) Preconfigure(reg *resilience.Registry) {
	for _, name := range p.componentNames() {
		if p.Resilience.Components[name].Breaker == nil {
			continue
		}
		reg.BreakerWithConfig(name, p.BreakerConfig(name))
	}
}

func (p *Policies) componentNames() []string {
	names := make([]string, 0, len(p.Resilience.Components))
	for name := range p.Resilience.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c ComponentPolicy) validate(prefix string) []error {
	errs := c.Retry.validate(prefix + ".retry")
	return append(errs, c.Breaker.validate(prefix+".breaker")...)
}

func (p *RetryPolicy) validate(prefix string) []error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("%s: max_attempts must not be negative", prefix))
	}
	if p.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("%s: base_delay must not be negative", prefix))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("%s: max_delay must not be negative", prefix))
	}
	if p.BaseDelay > 0 && p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		errs = append(errs, fmt.Errorf("%s: base_delay must not exceed max_delay", prefix))
	}
	if p.Strategy != "" {
		if _, ok := strategies[p.Strategy]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown strategy %q", prefix, p.Strategy))
		}
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		errs = append(errs, fmt.Errorf("%s: jitter_factor must be between 0.0 and 1.0", prefix))
	}
	if p.RateLimitFloor < 0 {
		errs = append(errs, fmt.Errorf("%s: rate_limit_floor must not be negative", prefix))
	}
	return errs
}

func (p *BreakerPolicy) validate(prefix string) []error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s: failure_threshold must not be negative", prefix))
	}
	if p.SuccessThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s: success_threshold must not be negative", prefix))
	}
	if p.HalfOpenMaxProbes < 0 {
		errs = append(errs, fmt.Errorf("%s: half_open_max_probes must not be negative", prefix))
	}
	if p.OpenDuration < 0 {
		errs = append(errs, fmt.Errorf("%s: open_duration must not be negative", prefix))
	}
	return errs
}

func (h HealthPolicy) validate() []error {
	var errs []error
	if h.WindowSize < 0 {
		errs = append(errs, errors.New("resilience.health: window_size must not be negative"))
	}
	if h.DegradedThreshold < 0 || h.DegradedThreshold > 1 {
		errs = append(errs, errors.New("resilience.health: degraded_threshold must be between 0.0 and 1.0"))
	}
	if h.UnhealthyThreshold < 0 || h.UnhealthyThreshold > 1 {
		errs = append(errs, errors.New("resilience.health: unhealthy_threshold must be between 0.0 and 1.0"))
	}
	if h.DegradedThreshold > 0 && h.UnhealthyThreshold > 0 && h.DegradedThreshold > h.UnhealthyThreshold {
		errs = append(errs, errors.New("resilience.health: degraded_threshold must not exceed unhealthy_threshold"))
	}
	return errs
}

// apply overlays non-zero policy fields onto cfg.
func (p *RetryPolicy) apply(cfg retry.Config) retry.Config {
	if p == nil {
		return cfg
	}
	if p.MaxAttempts > 0 {
		cfg.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		cfg.BaseDelay = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		cfg.MaxDelay = p.MaxDelay
	}
	if p.Strategy != "" {
		cfg.Strategy = strategies[p.Strategy]
	}
	if p.JitterFactor > 0 {
		cfg.JitterFactor = p.JitterFactor
	}
	if p.RateLimitFloor > 0 {
		cfg.RateLimitFloor = p.RateLimitFloor
	}
	return cfg
}

func (p *BreakerPolicy) apply(cfg circuitbreaker.Config) circuitbreaker.Config {
	if p == nil {
		return cfg
	}
	if p.FailureThreshold > 0 {
		cfg.FailureThreshold = p.FailureThreshold
	}
	if p.SuccessThreshold > 0 {
		cfg.SuccessThreshold = p.SuccessThreshold
	}
	if p.HalfOpenMaxProbes > 0 {
		cfg.HalfOpenMaxProbes = p.HalfOpenMaxProbes
	}
	if p.OpenDuration > 0 {
		cfg.OpenDuration = p.OpenDuration
	}
	return cfg
}
