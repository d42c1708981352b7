package domain

import (
	"fmt"
	"math/rand/v2"
)

// AllCategories is the pseudo-category that matches every quote.
const AllCategories = "all"

// MergeReport counts what a merge did to each remote record.
type MergeReport struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Changed reports whether the merge modified the collection.
func (r MergeReport) Changed() bool {
	return r.Added > 0 || r.Updated > 0
}

// Collection is the ordered set of quotes held by the service.
//
// Quotes with an ID are unique by ID. Quotes without one may repeat.
// The collection only grows: Merge replaces in place or appends, and
// nothing removes entries, so a position stays valid for the life of
// the collection.
//
// Collection is not safe for concurrent use; the owner serializes access.
type Collection struct {
	quotes []Quote
	byID   map[string]int
}

// NewCollection builds a collection from quotes in order.
// Two quotes sharing an ID is a ConflictError.
func NewCollection(quotes ...Quote) (*Collection, error) {
	c := &Collection{
		quotes: make([]Quote, 0, len(quotes)),
		byID:   make(map[string]int, len(quotes)),
	}

	for _, q := range quotes {
		if q.IsSynced() {
			if _, dup := c.byID[q.ID]; dup {
				return nil, NewConflictErrorWithDetails("quote", "duplicate id", q.ID)
			}
		}

		c.Append(q)
	}

	return c, nil
}

// Clone returns an independent copy of the collection.
func (c *Collection) Clone() *Collection {
	out := &Collection{
		quotes: make([]Quote, len(c.quotes), cap(c.quotes)+1),
		byID:   make(map[string]int, len(c.byID)),
	}

	for i, q := range c.quotes {
		out.quotes[i] = q.clone()
	}

	for id, i := range c.byID {
		out.byID[id] = i
	}

	return out
}

// Len returns the number of quotes.
func (c *Collection) Len() int {
	return len(c.quotes)
}

// At returns the quote at position i.
func (c *Collection) At(i int) Quote {
	return c.quotes[i].clone()
}

// Quotes returns a copy of all quotes in insertion order.
func (c *Collection) Quotes() []Quote {
	out := make([]Quote, len(c.quotes))
	for i, q := range c.quotes {
		out[i] = q.clone()
	}

	return out
}

// Append adds q at the end and returns it as stored.
//
// A quote whose ID is already present is stored as an unsynced copy, with
// ID and UpdatedAt cleared, so IDs stay unique and the copy is pushed like
// any other local quote.
func (c *Collection) Append(q Quote) Quote {
	q = q.clone()

	if q.IsSynced() {
		if _, exists := c.byID[q.ID]; exists {
			q.ID = ""
			q.UpdatedAt = nil
		} else {
			c.byID[q.ID] = len(c.quotes)
		}
	}

	c.quotes = append(c.quotes, q)

	return q.clone()
}

// ReplaceAt swaps the quote at position i for q. It is used to promote a
// local quote to its synced version after a push, so i must hold an
// unsynced quote and q must carry an ID not yet in the collection.
func (c *Collection) ReplaceAt(i int, q Quote) error {
	if i < 0 || i >= len(c.quotes) {
		return NewNotFoundError("quote position", fmt.Sprint(i))
	}

	if c.quotes[i].IsSynced() {
		return NewConflictErrorWithDetails("quote", "position already synced", c.quotes[i].ID)
	}

	if !q.IsSynced() {
		return NewValidationError("id", "must be set on a pushed quote")
	}

	if _, exists := c.byID[q.ID]; exists {
		return NewConflictErrorWithDetails("quote", "duplicate id", q.ID)
	}

	c.quotes[i] = q.clone()
	c.byID[q.ID] = i

	return nil
}

// Merge reconciles the collection with a remote snapshot, last write wins.
//
// For each remote quote with an ID: if a local quote has the same ID, the
// remote one replaces it in place only when its UpdatedAt is strictly
// later; otherwise it is appended. Remote quotes without an ID or with a
// blank field are skipped. Local quotes without an ID are never touched
// and nothing is ever removed, which makes Merge idempotent.
func (c *Collection) Merge(remote []Quote) MergeReport {
	var report MergeReport

	for _, r := range remote {
		if !r.IsSynced() || r.Validate() != nil {
			report.Skipped++
			continue
		}

		i, exists := c.byID[r.ID]
		if !exists {
			c.Append(r)
			report.Added++

			continue
		}

		if r.NewerThan(c.quotes[i]) {
			c.quotes[i] = r.clone()
			report.Updated++

			continue
		}

		report.Unchanged++
	}

	return report
}

// Filter returns the quotes in category, or all of them for AllCategories.
// Matching is exact and case-sensitive.
func (c *Collection) Filter(category string) []Quote {
	if category == AllCategories {
		return c.Quotes()
	}

	out := make([]Quote, 0)

	for _, q := range c.quotes {
		if q.Category == category {
			out = append(out, q.clone())
		}
	}

	return out
}

// Categories returns AllCategories followed by each distinct category in
// order of first appearance.
func (c *Collection) Categories() []string {
	seen := make(map[string]struct{}, len(c.quotes))
	out := []string{AllCategories}

	for _, q := range c.quotes {
		if _, ok := seen[q.Category]; ok {
			continue
		}

		seen[q.Category] = struct{}{}
		out = append(out, q.Category)
	}

	return out
}

// Pending returns the positions of quotes not yet known to the remote.
func (c *Collection) Pending() []int {
	var out []int

	for i, q := range c.quotes {
		if !q.IsSynced() {
			out = append(out, i)
		}
	}

	return out
}

// Random picks a quote from category using rng.
// Returns a NotFoundError when the category is empty.
func (c *Collection) Random(category string, rng *rand.Rand) (Quote, error) {
	candidates := c.Filter(category)
	if len(candidates) == 0 {
		return Quote{}, NewNotFoundError("quote in category "+category, "")
	}

	return candidates[rng.IntN(len(candidates))], nil
}
