package resilience

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultTimes is the number of attempts used when RetryConfig.Times is not positive.
	DefaultTimes = 3

	// DefaultTimeout is the base backoff unit used by DefaultRetryConfig.
	DefaultTimeout = time.Second
)

// RetryConfig configures retry behavior.
//
// The wait before attempt n (zero-indexed) is n*Timeout, so the first attempt
// runs immediately and later attempts back off linearly.
type RetryConfig struct {
	Times   int           // Maximum number of attempts, including the first
	Timeout time.Duration // Base backoff unit; zero disables waiting
}

// DefaultRetryConfig returns three attempts with a one second backoff unit.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Times:   DefaultTimes,
		Timeout: DefaultTimeout,
	}
}

// Normalized clamps a config into its valid range: Times <= 0 becomes
// DefaultTimes and a negative Timeout becomes zero. Do applies it itself.
func (c RetryConfig) Normalized() RetryConfig {
	if c.Times <= 0 {
		c.Times = DefaultTimes
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}

// Delay returns the wait before the given zero-indexed attempt.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.Normalized()
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * c.Timeout
}

// RetryFunc is the function signature for operations that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryCallback is called after a failed attempt that will be retried.
// attempt is the 1-based number of the attempt that just failed.
type RetryCallback func(attempt int, err error, nextDelay time.Duration)

type options struct {
	clock    clock.Clock
	callback RetryCallback
}

// Option customizes a single Retry or Do call.
type Option func(*options)

// WithClock sets the clock used for backoff waits.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRetryCallback registers a callback invoked before each backoff wait.
func WithRetryCallback(cb RetryCallback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// Retry runs fn until it succeeds or cfg.Times attempts have failed.
// On exhaustion it returns the error from the last attempt; earlier errors
// are discarded. The backoff wait ends early with ctx.Err() if ctx is done.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.Normalized()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.Times; attempt++ {
		if delay := cfg.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-o.clock.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt+1 < cfg.Times && o.callback != nil {
			o.callback(attempt+1, err, cfg.Delay(attempt+1))
		}
	}

	return zero, lastErr
}

// Do is Retry for operations that produce no value.
func Do(ctx context.Context, cfg RetryConfig, fn RetryFunc, opts ...Option) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}
