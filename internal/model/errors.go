// ABOUTME: Error types for model backend failures
// ABOUTME: Distinguishes misconfiguration, auth rejection, rate limits and outages

package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when no API key is configured for the backend
var ErrNotConfigured = errors.New("model backend not configured")

// ErrUnauthorized is returned when the backend rejects the configured credentials
var ErrUnauthorized = errors.New("model backend rejected credentials")

// Default retry-after hints when the provider supplies none
const (
	DefaultRetryAfter          = 30 * time.Second
	DefaultRateLimitRetryAfter = 60 * time.Second
)

// RateLimitError is returned when the backend answers 429.
// RetryAfter is taken from the provider's Retry-After header when present.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("model backend rate limited, retry after %s", e.RetryAfter)
}

// UnavailableError is returned for unreachable backends and non-specific
// provider failures.
type UnavailableError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model backend unavailable: %s", e.Reason)
}
