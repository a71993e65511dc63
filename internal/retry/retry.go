// Package retry runs operations repeatedly at a fixed cadence until they
// succeed or a wall-clock budget expires.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ftos-forks/await-remote-run/internal/clock"
	"github.com/ftos-forks/await-remote-run/internal/metrics"
)

const (
	// Delay is the fixed pause between failed attempts. It is deliberately
	// constant rather than exponential: the loops built on this package poll
	// a remote scheduler, and a steady cadence keeps their timing behavior
	// predictable within a wall-clock budget.
	Delay = time.Second
	// DefaultLabel names operations whose callers did not supply a label.
	DefaultLabel = "anonymous function"
)

// Operation is a retryable unit of work. Implementations should observe ctx
// so abandoned attempts settle promptly, though the loop tolerates ones that
// do not.
type Operation[T any] func(ctx context.Context) (T, error)

// Reason explains why a Result carries no value.
type Reason string

// ReasonTimeout is the only failure reason: the budget elapsed before an
// attempt succeeded.
const ReasonTimeout Reason = "timeout"

// Result is the outcome of OnError. Callers branch on Success; attempt errors
// are absorbed by the loop and surface only as warning logs.
type Result[T any] struct {
	Success bool
	Value   T
	Reason  Reason
}

// Option adjusts the loop's collaborators and tuning.
type Option func(*settings)

type settings struct {
	label  string
	clock  clock.Clock
	logger *slog.Logger
}

// WithLabel names the operation in warning logs.
func WithLabel(label string) Option {
	return func(s *settings) {
		if label != "" {
			s.label = label
		}
	}
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger routes attempt warnings to a specific logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

type attempt[T any] struct {
	value T
	err   error
}

// OnError invokes op until it succeeds or timeout elapses, pausing the fixed
// delay after every failure. The budget is measured once, from entry; it does
// not reset or slide between attempts, and there is no attempt-count limit.
// Each failed attempt logs exactly one warning naming the operation; nothing
// is logged on success. A panicking operation counts as a failed attempt.
// The deadline timer is authoritative: once it has fired the result is
// timeout, even if a racing attempt settles successfully. A caller context
// that dies mid-loop resolves the same way.
func OnError[T any](ctx context.Context, op Operation[T], timeout time.Duration, opts ...Option) Result[T] {
	s := settings{
		label:  DefaultLabel,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	deadline := s.clock.After(timeout)
	timedOut := func() Result[T] {
		metrics.RetryTimeouts.Add(1)
		return Result[T]{Reason: ReasonTimeout}
	}

	for n := 1; ; n++ {
		select {
		case <-deadline:
			return timedOut()
		default:
		}

		metrics.RetryAttempts.Add(1)
		settled := make(chan attempt[T], 1)
		go func() {
			settled <- run(ctx, op)
		}()

		var out attempt[T]
		select {
		case <-deadline:
			return timedOut()
		case <-ctx.Done():
			return timedOut()
		case out = <-settled:
		}

		if out.err == nil {
			// The timer stays authoritative when the winning attempt
			// and the deadline settle together.
			select {
			case <-deadline:
				return timedOut()
			default:
			}
			return Result[T]{Success: true, Value: out.value}
		}

		metrics.RetryFailures.Add(1)
		s.logger.Warn("operation failed, retrying", "operation", s.label, "attempt", n, "error", out.err)

		select {
		case <-deadline:
			return timedOut()
		case <-ctx.Done():
			return timedOut()
		case <-s.clock.After(Delay):
		}
	}
}

// run executes a single attempt, converting panics into errors so one bad
// attempt cannot take down the loop.
func run[T any](ctx context.Context, op Operation[T]) (out attempt[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = attempt[T]{err: fmt.Errorf("operation panicked: %v", r)}
		}
	}()
	v, err := op(ctx)
	return attempt[T]{value: v, err: err}
}
