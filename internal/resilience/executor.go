package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"scanwatch/internal/config"
	"scanwatch/internal/logging"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a call without
// invoking the operation. It is a short-circuit signal, not a failure of the
// operation itself, and is never classified or retried.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Policy holds retry and backoff parameters. Immutable once constructed.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
	JitterBound     time.Duration
}

// PolicyFromConfig builds a Policy from the [retry] config section.
func PolicyFromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialDelay:    time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		ExponentialBase: cfg.ExponentialBase,
		MaxDelay:        time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		JitterBound:     time.Duration(cfg.JitterBoundMs) * time.Millisecond,
	}
}

// BreakerSettings holds circuit breaker thresholds and timing.
type BreakerSettings struct {
	FailureThreshold int
	Window           time.Duration
	OpenTimeout      time.Duration
}

// BreakerFromConfig builds BreakerSettings from the [circuit_breaker] section.
func BreakerFromConfig(cfg config.CircuitBreaker) BreakerSettings {
	return BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		Window:           time.Duration(cfg.WindowSeconds) * time.Second,
		OpenTimeout:      time.Duration(cfg.OpenTimeoutSeconds) * time.Second,
	}
}

// BreakerState is the circuit breaker's current position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Executor runs operations with bounded retry and an optional per-instance
// circuit breaker. Each logical external dependency gets its own Executor so
// failure counters are never shared; construct one for the classifier and a
// separate one for filesystem renames.
type Executor struct {
	name    string
	policy  Policy
	breaker *breaker
	logger  *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
	randF func() float64
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleeper overrides the backoff sleep, for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
			if e.breaker != nil {
				e.breaker.now = now
			}
		}
	}
}

// WithRand overrides the jitter source, for tests. The function must return
// values in [0, 1).
func WithRand(randF func() float64) Option {
	return func(e *Executor) {
		if randF != nil {
			e.randF = randF
		}
	}
}

// New constructs an Executor. A zero-valued BreakerSettings disables the
// breaker entirely.
func New(name string, policy Policy, settings BreakerSettings, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	exec := &Executor{
		name:   name,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "resilience"),
		sleep:  sleepContext,
		now:    time.Now,
		randF:  rand.Float64,
	}
	if settings.FailureThreshold > 0 {
		exec.breaker = &breaker{
			settings: settings,
			state:    BreakerClosed,
			now:      time.Now,
		}
	}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

// Execute runs op with retry and breaker protection. On success it returns
// nil. On failure it returns the operation's last error unchanged, or
// ErrBreakerOpen when the breaker rejected the call outright.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	halfOpen, err := e.admit()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			e.recordSuccess(halfOpen)
			return nil
		}
		lastErr = err

		reopened := e.recordFailure(halfOpen)
		if reopened {
			// A probe failure reopens the breaker; no point retrying into it.
			return lastErr
		}

		severity := Classify(err)
		if severity != SeverityTransient || attempt == e.policy.MaxAttempts {
			e.logger.Debug("giving up",
				logging.String("operation", e.name),
				logging.Int("attempt", attempt),
				logging.String("severity", string(severity)),
				logging.Error(err))
			return lastErr
		}

		delay := e.backoff(attempt)
		e.logger.Warn("retrying after transient failure",
			logging.String("operation", e.name),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// BreakerState reports the breaker's current state, or BreakerClosed when the
// executor runs without one.
func (e *Executor) BreakerState() BreakerState {
	if e.breaker == nil {
		return BreakerClosed
	}
	return e.breaker.currentState()
}

// admit consults the breaker before an operation. It reports whether the call
// is a half-open probe, or ErrBreakerOpen when the call is rejected.
func (e *Executor) admit() (bool, error) {
	if e.breaker == nil {
		return false, nil
	}
	halfOpen, ok := e.breaker.admit()
	if !ok {
		e.logger.Debug("call rejected", logging.String("operation", e.name))
		return false, fmt.Errorf("%s: %w", e.name, ErrBreakerOpen)
	}
	if halfOpen {
		e.logger.Info("circuit breaker probing",
			logging.String("operation", e.name),
			logging.String("event_type", "breaker_half_open"))
	}
	return halfOpen, nil
}

func (e *Executor) recordSuccess(halfOpen bool) {
	if e.breaker == nil {
		return
	}
	if e.breaker.recordSuccess(halfOpen) {
		e.logger.Info("circuit breaker closed",
			logging.String("operation", e.name),
			logging.String("event_type", "breaker_closed"))
	}
}

func (e *Executor) recordFailure(halfOpen bool) bool {
	if e.breaker == nil {
		return false
	}
	opened := e.breaker.recordFailure(halfOpen)
	if opened {
		e.logger.Warn("circuit breaker opened",
			logging.String("operation", e.name),
			logging.String("event_type", "breaker_opened"))
	}
	return opened && halfOpen
}

// backoff computes the delay applied before retrying attempt+1. Attempts are
// 1-indexed: backoff(1) is the delay after the first failure.
func (e *Executor) backoff(attempt int) time.Duration {
	base := float64(e.policy.InitialDelay) * math.Pow(e.policy.ExponentialBase, float64(attempt-1))
	capped := math.Min(base, float64(e.policy.MaxDelay))
	jitter := 0.0
	if e.policy.JitterBound > 0 {
		jitter = e.randF() * float64(e.policy.JitterBound)
	}
	return time.Duration(capped + jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// breaker is the sliding-window circuit breaker owned by one Executor.
type breaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	state    BreakerState
	openedAt time.Time
	failures []time.Time
	now      func() time.Time
}

// admit reports (halfOpenProbe, allowed).
func (b *breaker) admit() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.settings.OpenTimeout {
			b.state = BreakerHalfOpen
			return true, true
		}
		return false, false
	case BreakerHalfOpen:
		return true, true
	default:
		return false, true
	}
}

// recordSuccess reports whether the breaker transitioned to closed.
func (b *breaker) recordSuccess(halfOpen bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if halfOpen && b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.failures = b.failures[:0]
		return true
	}
	return false
}

// recordFailure reports whether the breaker transitioned to open.
func (b *breaker) recordFailure(halfOpen bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)
	b.failures = append(b.failures, now)

	if halfOpen && b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		return true
	}
	if b.state == BreakerClosed && len(b.failures) >= b.settings.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = now
		return true
	}
	return false
}

func (b *breaker) currentState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) prune(now time.Time) {
	cutoff := now.Add(-b.settings.Window)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}
