package dto

import (
	"time"

	"github.com/jsamuelsen/quotesync/internal/app"
	"github.com/jsamuelsen/quotesync/internal/domain"
)

// QuoteResponse is a quote on the wire. ID and UpdatedAt are omitted for
// records that were never synced.
type QuoteResponse struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text"`
	Author    string     `json:"author"`
	Category  string     `json:"category"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Synced    bool       `json:"synced"`
}

// NewQuoteResponse converts a domain quote.
func NewQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		Category:  q.Category,
		UpdatedAt: q.UpdatedAt,
		Synced:    q.IsSynced(),
	}
}

// NewQuoteListResponse converts quotes, never returning nil.
func NewQuoteListResponse(quotes []domain.Quote) QuoteListResponse {
	items := make([]QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		items = append(items, NewQuoteResponse(q))
	}

	return QuoteListResponse{Quotes: items, Count: len(items)}
}

// QuoteListResponse wraps a list of quotes.
type QuoteListResponse struct {
	Quotes []QuoteResponse `json:"quotes"`
	Count  int             `json:"count"`
}

// AddQuoteRequest is the body of POST /quotes. Blank fields are rejected
// here before the domain sees them.
type AddQuoteRequest struct {
	Text     string `json:"text"     validate:"notblank,max=2000"`
	Author   string `json:"author"   validate:"notblank,max=200"`
	Category string `json:"category" validate:"notblank,max=100"`
}

// CategoryQuery is the optional ?category= filter.
type CategoryQuery struct {
	Category string `form:"category" validate:"max=100"`
}

// FilterRequest is the body of PUT /filter.
type FilterRequest struct {
	Category string `json:"category" validate:"notblank,max=100"`
}

// FilterResponse reports the selected filter.
type FilterResponse struct {
	Category string `json:"category"`
}

// CategoriesResponse lists "all" followed by every known category.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// ImportResponse reports how many quotes an import appended.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// MergeReportResponse is the outcome of a sync.
type MergeReportResponse struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// NewMergeReportResponse converts a merge report.
func NewMergeReportResponse(r domain.MergeReport) MergeReportResponse {
	return MergeReportResponse(r)
}

// PushReportResponse is the outcome of pushing pending quotes.
type PushReportResponse struct {
	Pushed  int `json:"pushed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// NewPushReportResponse converts a push report.
func NewPushReportResponse(r app.PushReport) PushReportResponse {
	return PushReportResponse{Pushed: r.Pushed, Failed: r.Failed, Skipped: r.Skipped}
}
