// Package resilience provides reliability and fault tolerance patterns for the application.
// It composes the circuitbreaker, retry, classify and health subpackages behind a single
// Registry so call sites can protect any dependency by naming a component.
//
// The package supports:
//   - Circuit breakers for external calls (job boards, scoring API, database, notifiers)
//   - Retry logic with exponential backoff and jitter, driven by error classification
//   - Rolling per-component health tracking for the health endpoint and CLI
//
// Usage Example:
//
//	reg := resilience.New(resilience.WithMetrics(observer))
//	jobs, err := resilience.Invoke(ctx, reg, "scraper.greenhouse", fetchJobs,
//	    resilience.WithOperation("fetch_jobs"),
//	    resilience.WithRetry(retry.JobBoardConfig()))
//
//	err := reg.Do(ctx, "notifier", sendDigest)
package resilience
