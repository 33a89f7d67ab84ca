package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNodeTimeout is returned by Timeout when the wrapped node does not finish in time.
var ErrNodeTimeout = errors.New("node timed out")

// RetryConfig configures retry behavior for nodes. The executor never retries on its
// own; wrap a node function with Retry to opt in.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool // Determines if an error should trigger retry
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
}

// Retry wraps fn with exponential backoff.
func Retry(fn NodeFunc, config *RetryConfig) NodeFunc {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return func(ctx context.Context, state State) (State, error) {
		var lastErr error
		delay := config.InitialDelay

		for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("retry cancelled: %w", err)
			}

			result, err := fn(ctx, state)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if config.RetryableErrors != nil && !config.RetryableErrors(err) {
				return nil, err
			}

			if attempt < config.MaxAttempts {
				select {
				case <-time.After(delay):
					delay = min(time.Duration(float64(delay)*config.BackoffFactor), config.MaxDelay)
				case <-ctx.Done():
					return nil, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
				}
			}
		}

		return nil, fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
	}
}

// Timeout bounds the running time of fn. The wrapped function receives a context
// that is cancelled at the deadline.
func Timeout(fn NodeFunc, timeout time.Duration) NodeFunc {
	return func(ctx context.Context, state State) (State, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			value State
			err   error
		}
		resultChan := make(chan result, 1)

		go func() {
			defer func() {
				if r := recover(); r != nil {
					resultChan <- result{err: fmt.Errorf("%w: %v", ErrNodePanic, r)}
				}
			}()
			value, err := fn(timeoutCtx, state)
			resultChan <- result{value: value, err: err}
		}()

		select {
		case res := <-resultChan:
			return res.value, res.err
		case <-timeoutCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w after %v", ErrNodeTimeout, timeout)
		}
	}
}
