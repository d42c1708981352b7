package domain

import (
	"strings"
	"time"
)

// Quote is a quotation with its author and a free-form category label.
//
// A quote created locally has no ID and no UpdatedAt. Both are assigned
// by the remote source once the quote is known there, and UpdatedAt is
// only ever used to decide which of two versions of the same ID wins.
type Quote struct {
	// ID is the remote identifier. Empty for local, unsynced quotes.
	ID string

	// Text is the quotation itself.
	Text string

	// Author is who said or wrote it.
	Author string

	// Category is a case-sensitive label used for filtering.
	Category string

	// UpdatedAt is the remote modification time. Nil when never synced.
	UpdatedAt *time.Time
}

// NewLocalQuote builds an unsynced quote from user input.
// Fields are trimmed; the result is validated.
func NewLocalQuote(text, author, category string) (Quote, error) {
	q := Quote{
		Text:     strings.TrimSpace(text),
		Author:   strings.TrimSpace(author),
		Category: strings.TrimSpace(category),
	}

	if err := q.Validate(); err != nil {
		return Quote{}, err
	}

	return q, nil
}

// IsSynced reports whether the quote is known to the remote source.
func (q Quote) IsSynced() bool {
	return q.ID != ""
}

// Validate checks that text, author and category are non-blank.
func (q Quote) Validate() error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return NewValidationError("text", "must not be empty")
	case strings.TrimSpace(q.Author) == "":
		return NewValidationError("author", "must not be empty")
	case strings.TrimSpace(q.Category) == "":
		return NewValidationError("category", "must not be empty")
	}

	return nil
}

// NewerThan reports whether q carries a strictly later timestamp than other.
// A present timestamp is later than an absent one.
func (q Quote) NewerThan(other Quote) bool {
	switch {
	case q.UpdatedAt == nil:
		return false
	case other.UpdatedAt == nil:
		return true
	default:
		return q.UpdatedAt.After(*other.UpdatedAt)
	}
}

// Equal reports field-for-field equality, comparing timestamps by instant.
func (q Quote) Equal(other Quote) bool {
	if q.ID != other.ID || q.Text != other.Text || q.Author != other.Author || q.Category != other.Category {
		return false
	}

	if q.UpdatedAt == nil || other.UpdatedAt == nil {
		return q.UpdatedAt == nil && other.UpdatedAt == nil
	}

	return q.UpdatedAt.Equal(*other.UpdatedAt)
}

// clone returns a copy that shares no pointers with q.
func (q Quote) clone() Quote {
	if q.UpdatedAt != nil {
		t := *q.UpdatedAt
		q.UpdatedAt = &t
	}

	return q
}
