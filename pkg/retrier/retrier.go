// Package retrier runs an operation a bounded number of times with a fixed backoff between attempts.
package retrier

import (
	"context"
	"errors"
	"time"
)

const (
	defaultBackoff    = 1 * time.Second
	defaultMaxRetries = 5
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier implements bounded retries with a fixed backoff.
type Retrier struct {
	backoff    time.Duration
	maxRetries int
	sleep      SleepFunc
	onRetry    func(attempt int, err error)
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n < 1 {
			n = 1
		}
		r.maxRetries = n - 1
	}
}

// WithFixedBackoff waits exactly d between attempts.
func WithFixedBackoff(d time.Duration) Option {
	return func(r *Retrier) {
		r.backoff = d
	}
}

// WithSleep replaces the wait between attempts, e.g. with a fake clock in tests.
func WithSleep(fn SleepFunc) Option {
	return func(r *Retrier) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithOnRetry registers a callback invoked after every failed attempt that will be retried.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		backoff:    defaultBackoff,
		maxRetries: defaultMaxRetries,
		sleep:      Sleep,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying; Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes the given function with retries. It returns the last error when attempts run out.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if sleepErr := r.sleep(ctx, r.backoff); sleepErr != nil {
				return sleepErr
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if r.onRetry != nil && attempt < r.maxRetries {
			r.onRetry(attempt+1, err)
		}
	}

	return err
}
