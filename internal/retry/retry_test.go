package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoReturnsFirstSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), Config{MaxAttempts: 3}, func() (string, error) {
		calls++
		return "ok", nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errBoom
		}
		return 7, nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() (int, error) {
		calls++
		return 0, errBoom
	}, func(error) bool { return true })

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Config{MaxAttempts: 5, BaseDelay: time.Millisecond}, func() (int, error) {
		calls++
		return 0, errBoom
	}, func(error) bool { return false })

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDoBackoffDoubles(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	_, _ = Do(context.Background(), Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		OnRetry: func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		},
	}, func() (int, error) {
		return 0, errBoom
	}, func(error) bool { return true })

	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, waits)
}

func TestDoDelayForOverridesBase(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	_, _ = Do(context.Background(), Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		DelayFor:    func(error) time.Duration { return 3 * time.Millisecond },
		OnRetry: func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		},
	}, func() (int, error) {
		return 0, errBoom
	}, func(error) bool { return true })

	assert.Equal(t, []time.Duration{3 * time.Millisecond}, waits)
}

func TestDoCanceledContextStopsWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, Config{MaxAttempts: 3, BaseDelay: time.Minute}, func() (int, error) {
		calls++
		return 0, errBoom
	}, func(error) bool { return true })

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsStillRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Config{}, func() (int, error) {
		calls++
		return 0, errBoom
	}, func(error) bool { return true })

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}
