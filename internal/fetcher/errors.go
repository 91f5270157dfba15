package fetcher

import (
	"fmt"
	"net/http"
)

// BadStatusError is returned when the server answered with a status other than 200.
type BadStatusError struct {
	URL        string
	StatusCode int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("unexpected status for %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NetworkError represents connection level failures: refused or reset
// connections, DNS errors and truncated bodies.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a single attempt exceeded its time budget.
type TimeoutError struct {
	URL     string
	Timeout string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetching %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// InvalidURLError is returned when no request can be built from the URL.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every attempt allowed by the retry policy
// failed with a retryable error. Last holds the error of the final attempt.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
