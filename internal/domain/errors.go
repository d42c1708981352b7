// Package domain holds the quote entities, the collection that owns them,
// and the errors the rest of the service speaks in.
//
// Domain errors describe business-level failures. Adapters translate them
// to HTTP statuses, CLI exit codes, or log lines; nothing in here knows
// about transports.
package domain

import (
	"errors"
	"fmt"
)

// Kinds. Every error type below reports exactly one of them through
// errors.Is, however deeply it is wrapped.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrFormat      = errors.New("invalid format")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("unavailable")
)

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool  { return errors.Is(err, ErrValidation) }
func IsFormat(err error) bool      { return errors.Is(err, ErrFormat) }
func IsForbidden(err error) bool   { return errors.Is(err, ErrForbidden) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// suffix appends ": reason", or nothing for an empty reason.
func suffix(msg, reason string) string {
	if reason == "" {
		return msg
	}

	return msg + ": " + reason
}

// NotFoundError names a missing quote or category. ID may be empty.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}

	return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is a state clash: a duplicate ID in a snapshot, or a sync
// started while another one runs.
type ConflictError struct {
	Entity  string
	Reason  string
	Details string
}

func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

func NewConflictErrorWithDetails(entity, reason, details string) error {
	return &ConflictError{Entity: entity, Reason: reason, Details: details}
}

func (e *ConflictError) Error() string {
	msg := e.Entity + " conflict: " + e.Reason
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}

	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError reports the first field that failed validation.
// Returned by AddLocal when text, author or category is blank.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}

	return "validation failed for " + e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FormatError reports why a snapshot payload was rejected.
// Index is the offending entry, or -1 when the payload as a whole is wrong.
type FormatError struct {
	Index  int
	Reason string
	Cause  error
}

// NewFormatError rejects the whole payload. cause may be nil.
func NewFormatError(reason string, cause error) error {
	return &FormatError{Index: -1, Reason: reason, Cause: cause}
}

func NewEntryFormatError(index int, reason string) error {
	return &FormatError{Index: index, Reason: reason}
}

func (e *FormatError) Error() string {
	msg := "invalid snapshot: " + e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("invalid snapshot entry %d: %s", e.Index, e.Reason)
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Unwrap exposes the decoder error, if any.
func (e *FormatError) Unwrap() error { return e.Cause }

// ForbiddenError is a remote refusal (401 or 403).
type ForbiddenError struct {
	Operation string
	Reason    string
}

func NewForbiddenError(operation, reason string) error {
	return &ForbiddenError{Operation: operation, Reason: reason}
}

func (e *ForbiddenError) Error() string {
	return suffix(fmt.Sprintf("operation %q forbidden", e.Operation), e.Reason)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// UnavailableError is the network failure of a fetch or push.
// The sync cycle that hits it is abandoned and local state is left alone.
type UnavailableError struct {
	Service string
	Reason  string
}

func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

func (e *UnavailableError) Error() string {
	return suffix(fmt.Sprintf("service %q unavailable", e.Service), e.Reason)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
