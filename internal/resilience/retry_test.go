package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClock records every backoff wait and releases it immediately.
type recordingClock struct {
	clock.Clock
	mu       sync.Mutex
	recorded []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Clock: clock.NewMock()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.recorded = append(c.recorded, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *recordingClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.recorded...)
}

func TestRetry_Success(t *testing.T) {
	rec := newRecordingClock()
	calls := 0
	got, err := Retry(context.Background(), RetryConfig{Times: 3, Timeout: 10 * time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			return "pinned", nil
		}, WithClock(rec))

	require.NoError(t, err)
	assert.Equal(t, "pinned", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits(), "first attempt must not wait")
}

func TestRetry_EventualSuccess(t *testing.T) {
	rec := newRecordingClock()
	calls := 0
	got, err := Retry(context.Background(), RetryConfig{Times: 3, Timeout: 10 * time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient error")
			}
			return 42, nil
		}, WithClock(rec))

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.waits())
}

func TestRetry_ExhaustsAttemptsReturnsLastError(t *testing.T) {
	errs := []error{errors.New("E1"), errors.New("E2"), errors.New("E3")}
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{Times: 3},
		func(ctx context.Context) (struct{}, error) {
			e := errs[calls]
			calls++
			return struct{}{}, e
		})

	assert.Same(t, errs[2], err, "exhaustion should surface the last error unchanged")
	assert.Equal(t, 3, calls)
}

func TestRetry_SingleAttempt(t *testing.T) {
	rec := newRecordingClock()
	expected := errors.New("boom")
	calls := 0
	err := Do(context.Background(), RetryConfig{Times: 1, Timeout: time.Hour}, func(ctx context.Context) error {
		calls++
		return expected
	}, WithClock(rec))

	assert.Same(t, expected, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits())
}

func TestRetry_ZeroTimeoutNeverWaits(t *testing.T) {
	rec := newRecordingClock()
	calls := 0
	err := Do(context.Background(), RetryConfig{Times: 4, Timeout: 0}, func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	}, WithClock(rec))

	assert.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Empty(t, rec.waits())
}

func TestRetry_LinearBackoffSchedule(t *testing.T) {
	rec := newRecordingClock()
	_ = Do(context.Background(), RetryConfig{Times: 5, Timeout: time.Second}, func(ctx context.Context) error {
		return errors.New("fail")
	}, WithClock(rec))

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		4 * time.Second,
	}, rec.waits())
}

func TestRetry_BackoffTimingRealClock(t *testing.T) {
	const unit = 40 * time.Millisecond

	var starts []time.Time
	_ = Do(context.Background(), RetryConfig{Times: 3, Timeout: unit}, func(ctx context.Context) error {
		starts = append(starts, time.Now())
		return errors.New("fail")
	})

	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), unit)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 2*unit)
}

func TestRetry_DefaultsApplied(t *testing.T) {
	rec := newRecordingClock()
	calls := 0
	_ = Do(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	}, WithClock(rec))

	assert.Equal(t, DefaultTimes, calls)
	assert.Empty(t, rec.waits(), "zero Timeout is honored, only Times defaults")
}

func TestRetry_NegativeTimeoutClamped(t *testing.T) {
	cfg := RetryConfig{Times: 3, Timeout: -time.Second}
	assert.Equal(t, time.Duration(0), cfg.Delay(2))
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, RetryConfig{Times: 3, Timeout: time.Minute}, func(ctx context.Context) error {
			calls++
			return errors.New("error")
		}, WithClock(mock))
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestRetry_WithCallback(t *testing.T) {
	rec := newRecordingClock()
	type call struct {
		attempt int
		msg     string
		delay   time.Duration
	}
	var got []call

	calls := 0
	err := Do(context.Background(), RetryConfig{Times: 3, Timeout: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	}, WithClock(rec), WithRetryCallback(func(attempt int, err error, nextDelay time.Duration) {
		got = append(got, call{attempt, err.Error(), nextDelay})
	}))

	require.NoError(t, err)
	assert.Equal(t, []call{
		{1, "transient 1", 5 * time.Millisecond},
		{2, "transient 2", 10 * time.Millisecond},
	}, got)
}

func TestRetry_CallbackNotCalledAfterFinalAttempt(t *testing.T) {
	callbacks := 0
	_ = Do(context.Background(), RetryConfig{Times: 2}, func(ctx context.Context) error {
		return errors.New("fail")
	}, WithRetryCallback(func(int, error, time.Duration) { callbacks++ }))

	assert.Equal(t, 1, callbacks)
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{Times: 3, Timeout: 1000 * time.Millisecond}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 3000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, cfg.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}
