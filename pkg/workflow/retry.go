// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/kadirpekel/mediaforge/pkg/agent"
	"github.com/kadirpekel/mediaforge/pkg/httpclient"
)

// RetryConfig configures retry behavior for agent executions.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	// (default: 2, so 3 attempts total).
	MaxRetries int

	// BaseDelay is the initial delay between retries (default: 1s).
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries (default: 30s).
	MaxDelay time.Duration

	// JitterFactor adds randomness to delays (0.0-1.0, default: 0.1).
	JitterFactor float64

	// PermanentErrors are error substrings that mark a failure as
	// permanent when no typed classification applies. Anything
	// unmatched gets its full retry budget.
	PermanentErrors []string
}

// DefaultRetryConfig returns sensible defaults for model-backed work.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
		PermanentErrors: []string{
			"invalid api key",
			"unauthorized",
			"forbidden",
		},
	}
}

// Retryer handles retry logic with exponential backoff.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, filling zero config fields with defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.JitterFactor <= 0 {
		cfg.JitterFactor = def.JitterFactor
	}
	if len(cfg.PermanentErrors) == 0 {
		cfg.PermanentErrors = def.PermanentErrors
	}

	return &Retryer{config: cfg}
}

// DoWithResult executes fn until it succeeds, its error is classified as
// permanent, or retries run out. onRetry, when set, fires before each
// re-attempt.
func DoWithResult[T any](ctx context.Context, r *Retryer, operation string, onRetry func(), fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !r.isRetryable(err) {
			slog.Debug("Non-retryable error",
				"operation", operation,
				"error", err)
			return result, err
		}

		if attempt >= r.config.MaxRetries {
			slog.Warn("Max retries exceeded",
				"operation", operation,
				"attempts", attempt+1,
				"error", err)
			return result, &RetryError{
				Operation:   operation,
				Attempts:    attempt + 1,
				LastError:   err,
				IsExhausted: true,
			}
		}

		delay := r.calculateDelay(attempt)

		slog.Debug("Retrying operation",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", r.config.MaxRetries+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}

		if onRetry != nil {
			onRetry()
		}
	}

	return result, lastErr
}

// isRetryable classifies an error. Typed checks come first; the substring
// patterns only catch what the types don't cover. Unclassified failures
// are retried: only bad input, cancellation, exhaustion and the
// permanent-error patterns stop an agent short of its budget.
func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Bad input stays bad on retry.
	var valErr *agent.ValidationError
	if errors.As(err, &valErr) {
		return false
	}

	// The model may produce conforming output on another attempt.
	var outErr *agent.OutputValidationError
	if errors.As(err, &outErr) {
		return true
	}

	var httpErr *httpclient.RetryableError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var retryErr *RetryError
	if errors.As(err, &retryErr) && retryErr.IsExhausted {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range r.config.PermanentErrors {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			return false
		}
	}

	return true
}

// calculateDelay computes delay with exponential backoff and jitter.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * r.config.BaseDelay

	jitter := time.Duration(rand.Float64() * float64(delay) * r.config.JitterFactor)
	if rand.Float64() < 0.5 {
		delay -= jitter
	} else {
		delay += jitter
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	return delay
}

// RetryError represents an error after retry attempts.
type RetryError struct {
	Operation   string
	Attempts    int
	LastError   error
	IsExhausted bool
}

func (e *RetryError) Error() string {
	if e.IsExhausted {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastError)
	}
	return fmt.Sprintf("%s failed (attempt %d): %v", e.Operation, e.Attempts, e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// IsRetryExhausted checks if an error is a retry exhaustion error.
func IsRetryExhausted(err error) bool {
	var retryErr *RetryError
	return errors.As(err, &retryErr) && retryErr.IsExhausted
}
