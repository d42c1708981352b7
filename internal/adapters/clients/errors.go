// Package clients provides the instrumented HTTP client used to reach the
// remote quote source.
package clients

import (
	"errors"
	"fmt"
	"net/http"
)

// Client errors are infrastructure failures. The acl package translates
// them into domain errors.
var (
	// ErrCircuitOpen is returned without a network call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last failure once every attempt is used.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// StatusError is a retryable HTTP status that persisted through the last attempt.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
