// Package retry wraps model calls with bounded exponential backoff plus jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Defaults for Controller.
const (
	DefaultBaseDelay = time.Second
	DefaultCapDelay  = 30 * time.Second
	DefaultJitter    = 0.25
)

// Notice describes a failed attempt that will be retried.
type Notice struct {
	Attempt    int // 1-based number of the failed attempt
	MaxRetries int
	Delay      time.Duration
	Err        error
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("model call failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Controller retries an operation up to MaxRetries additional times.
type Controller struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration

	// Jitter is the symmetric random spread applied to each delay (0.25 = ±25%).
	Jitter float64

	// OnRetry is invoked before sleeping for each retried failure.
	OnRetry func(ctx context.Context, n Notice)

	// ShouldRetry reports whether err is retryable. Nil retries everything
	// except context cancellation.
	ShouldRetry func(err error) bool

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand returns a float in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// New creates a Controller with default delays.
func New(maxRetries int, optFns ...func(c *Controller)) *Controller {
	c := &Controller{
		MaxRetries: maxRetries,
		BaseDelay:  DefaultBaseDelay,
		CapDelay:   DefaultCapDelay,
		Jitter:     DefaultJitter,
	}
	for _, fn := range optFns {
		fn(c)
	}
	return c
}

// Do runs op until it succeeds or retries are exhausted. The returned error
// is an *ExhaustedError, or the context error when ctx ends first.
func Do[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxRetries := max(c.MaxRetries, 0)

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt > maxRetries || !c.shouldRetry(ctx, err) {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := c.Delay(attempt)
		if c.OnRetry != nil {
			c.OnRetry(ctx, Notice{Attempt: attempt, MaxRetries: maxRetries, Delay: delay, Err: err})
		}
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: maxRetries + 1, Err: lastErr}
}

// Delay returns the jittered wait after the given failed attempt:
// min(BaseDelay*2^(attempt-1), CapDelay) spread by ±Jitter.
func (c *Controller) Delay(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	capDelay := c.CapDelay
	if capDelay <= 0 {
		capDelay = DefaultCapDelay
	}

	d := base
	for i := 1; i < attempt && d < capDelay; i++ {
		d *= 2
	}
	d = min(d, capDelay)

	if c.Jitter > 0 {
		r := rand.Float64
		if c.Rand != nil {
			r = c.Rand
		}
		spread := (r()*2 - 1) * c.Jitter
		d = time.Duration(float64(d) * (1 + spread))
	}
	return max(d, 0)
}

func (c *Controller) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
