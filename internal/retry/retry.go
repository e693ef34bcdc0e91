// Package retry provides the bounded fixed-delay retry loop shared by the gateway session and the order executor.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop: at most MaxAttempts calls with Delay between consecutive calls.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Attempts returns MaxAttempts, treating non-positive values as a single attempt.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// ExhaustedError reports how many attempts ran and the error of the last one.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("gave up after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

// Is lets errors.Is(err, ErrExhausted) match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retriable; Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or the policy is spent.
// fn receives the 1-based attempt number. There is no wait after the final attempt.
// A cancelled ctx interrupts the wait and is returned as-is.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	max := p.Attempts()
	var last error
	for attempt := 1; attempt <= max; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if attempt == max {
			break
		}
		if err := Wait(ctx, p.Delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: max, Last: last}
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
