package retry

import "context"

// Retrier is a reusable handle for one retry policy. It normalizes its
// config once at construction so call sites share a single validated policy
// instead of passing Config values around.
type Retrier struct {
	cfg Config
}

// NewRetrier returns a Retrier that executes operations under cfg.
// Zero-valued fields are replaced with defaults.
func NewRetrier(cfg Config) *Retrier {
	return &Retrier{cfg: cfg.normalized()}
}

// Config returns the normalized policy the retrier runs with.
func (r *Retrier) Config() Config {
	return r.cfg
}

// Execute runs op under the retrier's policy. It returns nil once op
// succeeds, the terminal *Error when the policy gives up, or the context
// error if ctx is cancelled during a backoff wait.
func (r *Retrier) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
