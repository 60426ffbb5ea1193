package fetch

import (
	"errors"
	"fmt"
)

// Fetch errors. Only errors matching ErrRateLimited are retried.
var (
	// ErrRateLimited is matched by every rate-limit response.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrInvalidBaseURL is returned when the endpoint URL cannot be parsed
	// or is not http(s).
	ErrInvalidBaseURL = errors.New("invalid base URL: expected http or https")
)

// RateLimitError reports an HTTP 429 response.
type RateLimitError struct {
	// Prefix is the query that was rejected.
	Prefix string

	// StatusCode is the HTTP status, normally 429.
	StatusCode int

	// RetryAfter is the raw Retry-After header value, if the server sent one.
	RetryAfter string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("rate limited on prefix %q (status %d, retry after %s)", e.Prefix, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on prefix %q (status %d)", e.Prefix, e.StatusCode)
}

// Unwrap makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// TransportError reports a failed fetch that should not be retried.
type TransportError struct {
	// Prefix is the query that failed.
	Prefix string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %q: status %d: %v", e.Prefix, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %q: %v", e.Prefix, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}
