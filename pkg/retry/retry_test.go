package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
	base := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return base
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond}
	base := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return NonRetryable(base)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, base)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 10)
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond}
	calls := 0
	got, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("once")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDoValidation(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.Error(t, err)

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.Error(t, err)
}
