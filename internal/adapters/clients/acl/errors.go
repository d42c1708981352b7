package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/jsamuelsen/quotesync/internal/adapters/clients"
	"github.com/jsamuelsen/quotesync/internal/domain"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// RemoteError is what an error body said. The posts API answers most
// failures with "{}", so callers usually see an empty RemoteError.
type RemoteError struct {
	Code    string
	Message string
	Details map[string]string
}

// wireError accepts both {"error":{...}} and flat {"code","message"} bodies.
type wireError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadRemoteError decodes body, preferring nested fields over flat ones.
// ok is false when the body is missing, not JSON, or says nothing.
func ReadRemoteError(body io.Reader) (RemoteError, bool) {
	if body == nil {
		return RemoteError{}, false
	}

	var w wireError
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&w); err != nil {
		return RemoteError{}, false
	}

	re := RemoteError{
		Code:    firstNonEmpty(w.Error.Code, w.Code),
		Message: firstNonEmpty(w.Error.Message, w.Message),
		Details: w.Error.Details,
	}

	return re, re.Code != "" || re.Message != ""
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}

// MapHTTPError turns a failed call into a domain error. clientErr wins when
// set; otherwise a 2xx resp is no error at all.
//
// Anything that means the source could not be reached or would not answer
// becomes an UnavailableError, which sync treats as a transient network
// failure and leaves local state untouched.
func MapHTTPError(resp *http.Response, clientErr error, serviceName, operation string) error {
	switch {
	case clientErr != nil:
		return fromClientError(clientErr, serviceName, operation)
	case resp == nil:
		return domain.NewUnavailableError(serviceName, "no response received")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	}

	re, _ := ReadRemoteError(resp.Body)
	if re.Code != "" {
		return MapRemoteCode(re.Code, re.Message, serviceName, operation)
	}

	if re.Message == "" {
		re.Message = fmt.Sprintf("%s failed with status %d", operation, resp.StatusCode)
	}

	return fromStatus(resp.StatusCode, re, serviceName, operation)
}

func fromClientError(err error, serviceName, operation string) error {
	reason := fmt.Sprintf("%s failed: %v", operation, err)

	var statusErr *clients.StatusError
	switch {
	case errors.Is(err, clients.ErrCircuitOpen):
		reason = operation + ": circuit breaker open"
	case errors.As(err, &statusErr):
		reason = fmt.Sprintf("%s: source answered %d", operation, statusErr.StatusCode)
	case errors.Is(err, clients.ErrMaxRetriesExceeded):
		reason = operation + ": retries exhausted"
	}

	// The client error stays in the chain for context.DeadlineExceeded checks.
	return fmt.Errorf("%w: %w", domain.NewUnavailableError(serviceName, reason), err)
}

func fromStatus(status int, re RemoteError, serviceName, operation string) error {
	switch status {
	case http.StatusNotFound:
		// The posts collection itself is missing: a misconfigured source.
		return domain.NewNotFoundError(serviceName, operation)
	case http.StatusConflict:
		return domain.NewConflictError(serviceName, re.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewForbiddenError(operation, re.Message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if len(re.Details) > 0 {
			field := slices.Min(slices.Collect(maps.Keys(re.Details)))
			return domain.NewValidationError(field, re.Details[field])
		}

		return domain.NewValidationError("", re.Message)
	default:
		return domain.NewUnavailableError(serviceName, re.Message)
	}
}

// Codes understood by MapRemoteCode.
const (
	RemoteCodeNotFound     = "NOT_FOUND"
	RemoteCodeConflict     = "CONFLICT"
	RemoteCodeValidation   = "VALIDATION_ERROR"
	RemoteCodeForbidden    = "FORBIDDEN"
	RemoteCodeUnauthorized = "UNAUTHORIZED"
)

// MapRemoteCode maps an error body code to a domain error. Unknown codes
// mean the source is unavailable.
func MapRemoteCode(code, message, serviceName, operation string) error {
	switch code {
	case RemoteCodeNotFound:
		return domain.NewNotFoundError(serviceName, operation)
	case RemoteCodeConflict:
		return domain.NewConflictError(serviceName, message)
	case RemoteCodeValidation:
		return domain.NewValidationError("", message)
	case RemoteCodeForbidden:
		return domain.NewForbiddenError(operation, message)
	case RemoteCodeUnauthorized:
		return domain.NewForbiddenError(operation, "authentication required")
	default:
		return domain.NewUnavailableError(serviceName, message)
	}
}
