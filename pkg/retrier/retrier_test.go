package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock records requested sleeps without waiting.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		clock := &fakeClock{}
		r := New(WithMaxAttempts(4), WithSleep(clock.Sleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Len(t, clock.sleeps, 2)
	})

	t.Run("fail after max attempts", func(t *testing.T) {
		clock := &fakeClock{}
		r := New(WithMaxAttempts(3), WithSleep(clock.Sleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxAttempts(6), WithFixedBackoff(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})

	t.Run("permanent error stops retries", func(t *testing.T) {
		clock := &fakeClock{}
		r := New(WithMaxAttempts(5), WithSleep(clock.Sleep))
		cause := errors.New("bad request")

		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return Permanent(cause)
		})
		assert.Equal(t, cause, err)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, clock.sleeps)
	})

	t.Run("wrapped permanent error stops retries", func(t *testing.T) {
		clock := &fakeClock{}
		r := New(WithMaxAttempts(5), WithSleep(clock.Sleep))
		cause := errors.New("rejected")

		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.Join(errors.New("submit"), Permanent(cause))
		})
		assert.Equal(t, cause, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestRetrier_FixedBackoff(t *testing.T) {
	clock := &fakeClock{}
	var retried []int
	r := New(
		WithMaxAttempts(3),
		WithFixedBackoff(time.Second),
		WithSleep(clock.Sleep),
		WithOnRetry(func(attempt int, err error) { retried = append(retried, attempt) }),
	)

	last := errors.New("third")
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 3 {
			return last
		}
		return errors.New("fail")
	})

	assert.Equal(t, last, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.sleeps)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestWithMaxAttemptsFloor(t *testing.T) {
	clock := &fakeClock{}
	r := New(WithMaxAttempts(0), WithSleep(clock.Sleep))

	attempts := 0
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})

	assert.Equal(t, 1, attempts)
	assert.Empty(t, clock.sleeps)
}
