package client

import (
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for transient server failures.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int
	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
	// BackoffMultiplier is the exponential backoff multiplier.
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// RetryableStatusCodes are HTTP status codes that should be retried.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns sensible defaults for retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// NoRetry disables retries entirely.
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// Backoff returns the delay before the given attempt (1-based).
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(rc.InitialBackoff) * math.Pow(rc.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(rc.MaxBackoff) {
		backoff = float64(rc.MaxBackoff)
	}
	if rc.Jitter > 0 {
		backoff += backoff * rc.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

// RetryableError reports whether the error carries a retryable status code.
// Auth propagation lag is deliberately excluded: the fetch guard owns that
// policy.
func (rc RetryConfig) RetryableError(err error) bool {
	apiErr := AsAPIError(err)
	if apiErr == nil {
		return false
	}
	for _, code := range rc.RetryableStatusCodes {
		if apiErr.StatusCode == code {
			return true
		}
	}
	return false
}
