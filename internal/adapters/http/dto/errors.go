// Package dto holds the HTTP wire types: the error envelope, request
// binding and validation, and the mapping from domain errors to responses.
package dto

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
)

// ErrorResponse is the envelope of every error response.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	TraceID string      `json:"traceId,omitempty"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	// Code is a machine-readable error code such as "NOT_FOUND".
	Code string `json:"code"`

	Message string `json:"message"`

	// Details holds field-level messages for validation errors.
	Details map[string]string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeConflict      = "CONFLICT"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeInvalidFormat = "INVALID_FORMAT"
	ErrorCodeForbidden     = "FORBIDDEN"
	ErrorCodeUnavailable   = "SERVICE_UNAVAILABLE"
	ErrorCodeInternal      = "INTERNAL_ERROR"
	ErrorCodeTimeout       = "TIMEOUT"
	ErrorCodeBadRequest    = "BAD_REQUEST"
)

// ContextKeyTraceID is the gin context key consulted first by GetTraceID.
const ContextKeyTraceID = "trace_id"

const internalErrorMessage = "an internal error occurred"

func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// WithDetails attaches field messages and returns e.
func (e *ErrorResponse) WithDetails(details map[string]string) *ErrorResponse {
	e.Error.Details = details
	return e
}

// WithTraceID sets the trace ID and returns e.
func (e *ErrorResponse) WithTraceID(traceID string) *ErrorResponse {
	e.TraceID = traceID
	return e
}

var statusByCode = map[string]int{
	ErrorCodeNotFound:      http.StatusNotFound,
	ErrorCodeConflict:      http.StatusConflict,
	ErrorCodeValidation:    http.StatusBadRequest,
	ErrorCodeInvalidFormat: http.StatusBadRequest,
	ErrorCodeBadRequest:    http.StatusBadRequest,
	ErrorCodeForbidden:     http.StatusForbidden,
	ErrorCodeUnavailable:   http.StatusServiceUnavailable,
	ErrorCodeTimeout:       http.StatusGatewayTimeout,
}

// HTTPStatusFromCode maps an error code to its status; unknown codes are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// errorKinds is checked in order. An empty message means err.Error().
var errorKinds = []struct {
	is      func(error) bool
	code    string
	message string
}{
	{func(err error) bool { return errors.Is(err, ErrBinding) }, ErrorCodeBadRequest, ""},
	{domain.IsFormat, ErrorCodeInvalidFormat, ""},
	{domain.IsNotFound, ErrorCodeNotFound, ""},
	{domain.IsConflict, ErrorCodeConflict, ""},
	{domain.IsForbidden, ErrorCodeForbidden, ""},
	{domain.IsUnavailable, ErrorCodeUnavailable, ""},
	{func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }, ErrorCodeTimeout, "request timeout exceeded"},
}

// FromError maps err to a status code and response body. Domain errors
// keep their message; anything unrecognized becomes a generic 500 so
// internals do not leak.
func FromError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	resp := fromError(err)

	return HTTPStatusFromCode(resp.Error.Code), resp
}

func fromError(err error) *ErrorResponse {
	var ve *domain.ValidationError

	switch {
	case IsValidationError(err):
		return NewErrorResponse(ErrorCodeValidation, "request validation failed").WithDetails(ValidationErrors(err))
	case errors.As(err, &ve) && ve.Field != "":
		return NewErrorResponse(ErrorCodeValidation, err.Error()).WithDetails(map[string]string{ve.Field: ve.Message})
	case domain.IsValidation(err):
		return NewErrorResponse(ErrorCodeValidation, err.Error())
	}

	for _, kind := range errorKinds {
		if kind.is(err) {
			return NewErrorResponse(kind.code, cmp.Or(kind.message, err.Error()))
		}
	}

	return NewErrorResponse(ErrorCodeInternal, internalErrorMessage)
}

// GetTraceID returns the trace ID for c: an explicit gin value first, then
// the active span, then the request ID header.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyTraceID); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	if c.Request == nil {
		return ""
	}

	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return c.GetHeader("X-Request-ID")
}

// HandleError writes the response for err. Internal errors are logged with
// their real cause.
func HandleError(c *gin.Context, err error) {
	status, resp := FromError(err)
	resp.TraceID = GetTraceID(c)

	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("trace_id", resp.TraceID),
		)
	}

	c.JSON(status, resp)
}

// Abort stops the handler chain with an error response for code.
func Abort(c *gin.Context, code, message string) {
	resp := NewErrorResponse(code, message).WithTraceID(GetTraceID(c))
	c.AbortWithStatusJSON(HTTPStatusFromCode(code), resp)
}
