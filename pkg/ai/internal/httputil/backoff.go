// ABOUTME: Bounded retry with exponential backoff, jitter and per-attempt timeouts
// ABOUTME: Execute wraps one pre-stream request; cancellation is never retried

package httputil

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	cslog "github.com/mauromedda/chatstream/internal/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxJitter   = time.Second
)

// ErrAttemptTimeout marks an attempt that exceeded Policy.AttemptTimeout.
var ErrAttemptTimeout = errors.New("attempt timed out")

// RetryObserver is called before each wait with the 1-based number of the
// attempt that just failed.
type RetryObserver func(attempt, maxAttempts int, delay time.Duration, lastErr error)

// Policy configures Execute. Zero fields take the Default* values;
// AttemptTimeout zero means no per-attempt limit and a negative MaxJitter
// disables jitter.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	AttemptTimeout time.Duration
	Observer       RetryObserver

	// Jitter returns a random duration in [0, max]. Nil uses math/rand/v2.
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy returns the standard retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	switch {
	case p.MaxJitter == 0:
		p.MaxJitter = DefaultMaxJitter
	case p.MaxJitter < 0:
		p.MaxJitter = 0
	}
	if p.Jitter == nil {
		p.Jitter = uniformJitter
	}
	return p
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

// rawDelay is BaseDelay*2^attempt before jitter, capped at MaxDelay.
func (p Policy) rawDelay(attempt int) time.Duration {
	d := p.BaseDelay
	for range attempt {
		if d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// delay computes the wait after the failed attempt index (0-based).
func (p Policy) delay(attempt int, lastErr error) time.Duration {
	d := min(p.rawDelay(attempt)+p.Jitter(p.MaxJitter), p.MaxDelay)
	var se *StatusError
	if errors.As(lastErr, &se) && se.RetryAfter > d {
		d = min(se.RetryAfter, p.MaxDelay)
	}
	return d
}

// RetryState tracks one Execute call.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	LastErr     error
}

// PermanentError stops Execute from retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Execute returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryError is returned once every attempt has failed.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Execute calls fn until it succeeds, returns a permanent error, the context
// ends, or the policy's attempts are exhausted. Each attempt runs under a
// child context that is cancelled with ErrAttemptTimeout when the attempt
// limit elapses; on success that context stays live until ctx ends, so a
// returned response body remains readable.
func Execute[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	return ExecuteWithRelease(ctx, p, fn, nil)
}

// ExecuteWithRelease is Execute with a hook that receives results produced
// by an attempt that succeeded only after its timeout fired. Such a result
// is bound to a cancelled context; the attempt counts as timed out and
// release, if non-nil, disposes of it (for example by closing a body).
func ExecuteWithRelease[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), release func(T)) (T, error) {
	p = p.withDefaults()
	state := RetryState{MaxAttempts: p.MaxAttempts}
	var zero T

	for attempt := range p.MaxAttempts {
		state.Attempt = attempt + 1
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, late, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		if late && release != nil {
			release(result)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return zero, perm.Err
		}
		state.LastErr = err

		if state.Attempt >= p.MaxAttempts {
			break
		}

		wait := p.delay(attempt, err)
		cslog.Debug("retry: attempt %d/%d failed: %v; waiting %s", state.Attempt, state.MaxAttempts, err, wait)
		if p.Observer != nil {
			p.Observer(state.Attempt, state.MaxAttempts, wait, err)
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, &RetryError{Attempts: state.Attempt, Err: state.LastErr}
}

// runAttempt runs fn under the attempt timeout. late reports a result that
// fn returned successfully after the timeout had already fired.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (result T, late bool, err error) {
	if timeout <= 0 {
		result, err = fn(ctx)
		return result, false, err
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(timeout, func() { cancel(ErrAttemptTimeout) })
	result, err = fn(attemptCtx)
	stopped := timer.Stop()

	if err == nil {
		if stopped {
			return result, false, nil
		}
		// The timer fired (or is firing); the attempt context is dead.
		cancel(ErrAttemptTimeout)
		if ctx.Err() != nil {
			return result, true, ctx.Err()
		}
		return result, true, fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	}

	timedOut := errors.Is(context.Cause(attemptCtx), ErrAttemptTimeout)
	cancel(nil)
	if timedOut && ctx.Err() == nil {
		return result, false, fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, err)
	}
	return result, false, err
}

// sleepWithContext waits for the given duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
