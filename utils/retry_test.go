package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "maps-scraper/errors"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	calls := 0

	err := r.Do(context.Background(), "navigate", func(context.Context) error {
		calls++
		if calls < 3 {
			return perr.Navigationf("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryKeepsKindAfterExhaustion(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: NewNopLogger()}

	err := r.Do(context.Background(), "navigate", func(context.Context) error {
		return perr.Navigationf("status 503")
	})

	require.Error(t, err)
	assert.True(t, perr.IsKind(err, perr.KindNavigation))
}

func TestRetryStopsOnBlock(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	calls := 0

	err := r.Do(context.Background(), "navigate", func(context.Context) error {
		calls++
		return perr.Blockedf("captcha")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, perr.IsKind(err, perr.KindBlockDetected))
}

func TestRetryHonoursCancel(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, Logger: NewNopLogger()}
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Do(ctx, "navigate", func(context.Context) error {
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
