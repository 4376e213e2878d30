package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mediaforge/pkg/agent"
)

func fastRetryer(maxRetries int) *Retryer {
	return NewRetryer(RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func TestDoWithResult_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastRetryer(3), "op", nil, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_Exhaustion(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastRetryer(2), "op", nil, func() (string, error) {
		calls++
		return "", errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "maxRetries=2 means 3 attempts")
	assert.True(t, IsRetryExhausted(err))

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
}

func TestDoWithResult_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastRetryer(3), "op", nil, func() (string, error) {
		calls++
		return "", errors.New("invalid api key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsRetryExhausted(err))
}

func TestDoWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DoWithResult(ctx, fastRetryer(3), "op", nil, func() (string, error) {
		return "", errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult_OnRetryFires(t *testing.T) {
	retries := 0
	calls := 0
	_, _ = DoWithResult(context.Background(), fastRetryer(2), "op", func() { retries++ }, func() (string, error) {
		calls++
		return "", errors.New("503")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestIsRetryable_Classification(t *testing.T) {
	r := fastRetryer(1)

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "output validation", err: &agent.OutputValidationError{Agent: "a", Err: errors.New("bad json")}, retryable: true},
		{name: "input validation", err: &agent.ValidationError{Agent: "a", Field: "topic", Message: "empty"}, retryable: false},
		{name: "rate limit text", err: errors.New("429 too many requests"), retryable: true},
		{name: "context deadline", err: context.DeadlineExceeded, retryable: false},
		{name: "exhausted retry error", err: &RetryError{IsExhausted: true, LastError: errors.New("timeout")}, retryable: false},
		{name: "bad credentials", err: errors.New("invalid api key"), retryable: false},
		{name: "arbitrary failure gets the budget", err: errors.New("model exploded"), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, r.isRetryable(tt.err))
		})
	}
}

func TestCalculateDelay_Clamped(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   2 * time.Second,
	})

	for attempt := 0; attempt < 10; attempt++ {
		assert.LessOrEqual(t, r.calculateDelay(attempt), 2*time.Second)
	}
}
