// Package resilience provides failure classification, bounded retry with
// exponential backoff and jitter, and a per-instance circuit breaker for
// calls against flaky external dependencies.
package resilience
