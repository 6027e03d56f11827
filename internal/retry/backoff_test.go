package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := NewBackoff(fastConfig(3)).Retry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := NewBackoff(fastConfig(5)).Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	lastErr := errors.New("still broken")
	calls := 0
	err := NewBackoff(fastConfig(3)).Retry(context.Background(), func() error {
		calls++
		return lastErr
	})
	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	cfg := fastConfig(10)
	cfg.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewBackoff(cfg).Retry(ctx, func() error {
			return errors.New("keep going")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Retry did not honor cancellation")
	}
}

func TestCalculateDelayGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
	})

	assert.Equal(t, 100*time.Millisecond, b.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, b.calculateDelay(3))
	assert.Equal(t, time.Second, b.calculateDelay(5))
	assert.Equal(t, time.Second, b.calculateDelay(8))
}

func TestCalculateDelayJitterStaysBounded(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		delay := b.calculateDelay(2)
		assert.GreaterOrEqual(t, delay, 200*time.Millisecond)
		assert.Less(t, delay, 250*time.Millisecond)
	}
}
