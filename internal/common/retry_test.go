package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	fast := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	boom := errors.New("boom")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, func() error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		}, fast)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, func() error {
			calls++
			return boom
		}, fast)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors stop at once", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, func() error {
			calls++
			return Permanent(boom)
		}, fast)
		assert.Equal(t, boom, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context stops the backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, nil, func() error {
			calls++
			cancel()
			return boom
		}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestLoggerFrom(t *testing.T) {
	ctx := WithUserID(WithRunID(context.Background(), "r-1"), "u-1")
	assert.Equal(t, "r-1", RunIDFromContext(ctx))
	assert.Equal(t, "u-1", UserIDFromContext(ctx))
	assert.NotNil(t, LoggerFrom(ctx, nil))
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestFatal(t *testing.T) {
	err := Fatal("document could not be decoded", errors.New("binary"))
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "document could not be decoded")
	assert.False(t, IsFatal(ErrGenerationFailure))
}
