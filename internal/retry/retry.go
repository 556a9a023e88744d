// Package retry repeats an operation with exponential backoff until it
// succeeds, fails permanently, or runs out of attempts.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 2
)

// Policy controls how an operation is retried.
type Policy struct {
	MaxRetries int
	Backoff    *BackoffConfig
	// Retryable reports whether err is worth another attempt. Nil retries every error.
	Retryable func(err error) bool
	// OnRetry is called before waiting delay for attempt n+1.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NewPolicy creates a retry policy with default values.
func NewPolicy() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    NewBackoffConfig(),
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func (p *Policy) WithMaxRetries(maxRetries int) *Policy {
	p.MaxRetries = maxRetries
	return p
}

// WithRetryable sets the predicate deciding which errors are retried.
func (p *Policy) WithRetryable(fn func(err error) bool) *Policy {
	p.Retryable = fn
	return p
}

// WithOnRetry sets the hook called before every backoff wait.
func (p *Policy) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) *Policy {
	p.OnRetry = fn
	return p
}

// Do runs fn until it returns nil, returns an error the policy does not retry,
// or has been attempted MaxRetries+1 times. The last error is returned as is.
func Do(ctx context.Context, policy *Policy, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context error: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxRetries || (policy.Retryable != nil && !policy.Retryable(err)) {
			return err
		}

		delay := policy.Backoff.Calculate(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context error: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
