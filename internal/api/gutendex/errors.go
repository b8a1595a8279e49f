package gutendex

import (
	"errors"
	"fmt"
)

// ErrUnconstrainedSearch is returned when a search has no query, subject or author.
// The catalog would answer with its whole collection, so nothing is sent.
var ErrUnconstrainedSearch = errors.New("search needs a query, subject or author")

// NetworkError is a transport failure: the request never produced a response
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error requesting %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a response with a non-2xx status
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("catalog returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("catalog returned status %d for %s", e.StatusCode, e.URL)
}

// NotFound reports whether the catalog has no such resource
func (e *HTTPStatusError) NotFound() bool {
	return e.StatusCode == 404
}

// DecodeError is a 2xx response whose body is not the expected JSON
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the catalog
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.NotFound()
}
