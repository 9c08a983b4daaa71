package discord

import (
	"errors"
	"fmt"
	"time"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.URL, e.StatusCode)
}

// RateLimitError is returned for HTTP 429. RetryAfter is the cooldown the
// server asked for.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limited, retry after %v", e.Method, e.URL, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.APIError
}

// StatusCode extracts the HTTP status from err, or 0 if err did not come
// from a response.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err is a 429 from the server.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
