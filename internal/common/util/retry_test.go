package util

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/avast/retry-go"
	"github.com/stretchr/testify/assert"
)

var fastRetry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("attempt %d failed", calls)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func() error {
		calls++
		return fmt.Errorf("attempt %d failed", calls)
	})
	assert.EqualError(t, err, "attempt 3 failed")
	assert.Equal(t, 3, calls)
}

func TestWithRetry_RetryIf(t *testing.T) {
	calls := 0
	permanent := fmt.Errorf("permanent")
	err := WithRetry(context.Background(), fastRetry, func() error {
		calls++
		return permanent
	}, retry.RetryIf(func(err error) bool { return err != permanent }))
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = WithRetry(context.Background(), RetryConfig{}, func() error {
		calls++
		return fmt.Errorf("fail")
	})
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour}, func() error {
		calls++
		cancel()
		return fmt.Errorf("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
