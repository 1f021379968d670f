package confluence

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Confluence-specific errors.
var (
	// ErrInvalidCursor indicates a listing cursor did not come from this client.
	ErrInvalidCursor = errors.New("confluence: invalid cursor")

	// ErrNotConfigured indicates the base URL is missing.
	ErrNotConfigured = errors.New("confluence: base URL not configured")
)

// APIError represents a Confluence REST error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("confluence: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// RateLimitError is returned when retries run out while throttled.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("confluence: rate limit exceeded, retry at %s", e.RetryAt.Format(time.RFC3339))
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// retryable reports whether a status code is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
