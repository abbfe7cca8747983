package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"wellnest/config"
	bookingRepo "wellnest/database/repository/booking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Timeout: 50 * time.Millisecond, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return errStoreDown
	})
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRepeatPermanentErrors(t *testing.T) {
	for _, permanent := range []error{bookingRepo.ErrNotFound, bookingRepo.ErrDuplicateID, validationError(CodeMissingField, "x")} {
		calls := 0
		err := fastRetry(5).Do(context.Background(), nil, "op", func(context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errStoreDown
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryAttemptTimeout(t *testing.T) {
	calls := 0
	err := fastRetry(2).Do(context.Background(), nil, "op", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsAborted(err))
	assert.Equal(t, KindTransient, KindOf(translateStoreError("op", err)))
	assert.Equal(t, 2, calls)
}

func TestRetryCancelledCallerIsAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	err := policy.Do(ctx, nil, "op", func(context.Context) error {
		calls++
		cancel()
		return errStoreDown
	})
	assert.True(t, IsAborted(err))
	assert.True(t, errors.Is(translateStoreError("op", err), ErrAborted))
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := config.Config{StoreTimeoutSeconds: 8, RetryMaxAttempts: 4, RetryBaseDelayMS: 150, RetryMaxDelayMS: 900}

	p := RetryPolicyFromConfig(cfg)
	assert.Equal(t, RetryPolicy{MaxAttempts: 4, Timeout: 8 * time.Second, BaseDelay: 150 * time.Millisecond, MaxDelay: 900 * time.Millisecond}, p)
}
