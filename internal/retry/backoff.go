package retry

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay = 250 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
	DefaultJitterMin = 0.5
	DefaultJitterMax = 1.5

	// maxShift keeps 1<<attempt from overflowing the delay.
	maxShift = 30
)

// BackoffConfig describes exponential backoff with multiplicative jitter.
type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	JitterMin float64
	JitterMax float64
}

// NewBackoffConfig creates a new backoff configuration with default values.
func NewBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		JitterMin: DefaultJitterMin,
		JitterMax: DefaultJitterMax,
	}
}

// Calculate returns the wait before retry number attempt+1, never above MaxDelay.
func (c *BackoffConfig) Calculate(attempt int) time.Duration {
	shift := min(max(attempt, 0), maxShift)
	delay := min(c.BaseDelay<<shift, c.MaxDelay)

	jitter := c.JitterMin + rand.Float64()*(c.JitterMax-c.JitterMin)
	return min(time.Duration(float64(delay)*jitter), c.MaxDelay)
}
