package acl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotesync/internal/adapters/clients"
	"github.com/jsamuelsen/quotesync/internal/domain"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestMapHTTPError_Status(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"404 empty object", http.StatusNotFound, `{}`, domain.IsNotFound},
		{"409", http.StatusConflict, `{"message":"duplicate"}`, domain.IsConflict},
		{"400", http.StatusBadRequest, ``, domain.IsValidation},
		{"422 with details", http.StatusUnprocessableEntity,
			`{"error":{"message":"bad","details":{"title":"required"}}}`, domain.IsValidation},
		{"401", http.StatusUnauthorized, `{}`, domain.IsForbidden},
		{"403", http.StatusForbidden, `{}`, domain.IsForbidden},
		{"418 unknown", http.StatusTeapot, `{}`, domain.IsUnavailable},
		{"nested external code wins", http.StatusBadRequest,
			`{"error":{"code":"CONFLICT","message":"already exists"}}`, domain.IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(response(tt.status, tt.body), nil, "quote-source", "fetch quotes")
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestMapHTTPError_ValidationDetails(t *testing.T) {
	body := `{"error":{"message":"invalid post","details":{"title":"must not be empty"}}}`

	err := MapHTTPError(response(http.StatusBadRequest, body), nil, "quote-source", "push quote")

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "title", validationErr.Field)
	assert.Equal(t, "must not be empty", validationErr.Message)
}

func TestMapHTTPError_ClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCause error
	}{
		{"circuit open", clients.ErrCircuitOpen, clients.ErrCircuitOpen},
		{"retries exhausted on status", fmt.Errorf("%w: %w", clients.ErrMaxRetriesExceeded,
			&clients.StatusError{StatusCode: http.StatusServiceUnavailable}), clients.ErrMaxRetriesExceeded},
		{"deadline", fmt.Errorf("%w: %w", clients.ErrMaxRetriesExceeded, context.DeadlineExceeded), context.DeadlineExceeded},
		{"plain transport error", errors.New("connection reset"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(nil, tt.err, "quote-source", "fetch quotes")

			assert.True(t, domain.IsUnavailable(err))
			assert.ErrorIs(t, err, domain.ErrUnavailable)

			if tt.wantCause != nil {
				assert.ErrorIs(t, err, tt.wantCause)
			}
		})
	}
}

func TestMapHTTPError_StatusErrorMessage(t *testing.T) {
	cause := fmt.Errorf("%w: %w", clients.ErrMaxRetriesExceeded, &clients.StatusError{StatusCode: http.StatusBadGateway})

	err := MapHTTPError(nil, cause, "quote-source", "push quote")
	assert.Contains(t, err.Error(), "push quote: source answered 502")
}

func TestMapHTTPError_SuccessAndNil(t *testing.T) {
	assert.NoError(t, MapHTTPError(response(http.StatusCreated, `{}`), nil, "quote-source", "push quote"))
	assert.True(t, domain.IsUnavailable(MapHTTPError(nil, nil, "quote-source", "push quote")))
}

func TestMapRemoteCode(t *testing.T) {
	tests := map[string]func(error) bool{
		RemoteCodeNotFound:     domain.IsNotFound,
		RemoteCodeConflict:     domain.IsConflict,
		RemoteCodeValidation:   domain.IsValidation,
		RemoteCodeForbidden:    domain.IsForbidden,
		RemoteCodeUnauthorized: domain.IsForbidden,
		"SOMETHING_ELSE":       domain.IsUnavailable,
	}

	for code, check := range tests {
		t.Run(code, func(t *testing.T) {
			assert.True(t, check(MapRemoteCode(code, "msg", "quote-source", "push quote")))
		})
	}
}

func TestReadRemoteError(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		want RemoteError
		ok   bool
	}{
		{"nested", strings.NewReader(`{"error":{"code":"NOT_FOUND","message":"no post"}}`),
			RemoteError{Code: "NOT_FOUND", Message: "no post"}, true},
		{"flat", strings.NewReader(`{"code":"CONFLICT","message":"dup"}`),
			RemoteError{Code: "CONFLICT", Message: "dup"}, true},
		{"nested message, flat code", strings.NewReader(`{"code":"FORBIDDEN","error":{"message":"no"}}`),
			RemoteError{Code: "FORBIDDEN", Message: "no"}, true},
		{"empty object", strings.NewReader(`{}`), RemoteError{}, false},
		{"html", strings.NewReader(`<html>502</html>`), RemoteError{}, false},
		{"empty", strings.NewReader(``), RemoteError{}, false},
		{"nil", nil, RemoteError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReadRemoteError(tt.body)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapHTTPError_FirstDetailIsStable(t *testing.T) {
	body := `{"error":{"details":{"userId":"unknown","title":"required","body":"too long"}}}`

	for range 5 {
		var validationErr *domain.ValidationError
		require.ErrorAs(t, MapHTTPError(response(http.StatusBadRequest, body), nil, "quote-source", "push quote"), &validationErr)
		assert.Equal(t, "body", validationErr.Field)
	}
}
