package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}

	return &t
}

func TestNewLocalQuote(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		author    string
		category  string
		wantField string
	}{
		{name: "valid", text: "Stay hungry", author: "Jobs", category: "Motivation"},
		{name: "trims whitespace", text: "  Stay hungry ", author: "\tJobs", category: "Motivation\n"},
		{name: "empty text", text: "", author: "Author", category: "Cat", wantField: "text"},
		{name: "blank author", text: "T", author: "   ", category: "Cat", wantField: "author"},
		{name: "empty category", text: "T", author: "A", category: "", wantField: "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewLocalQuote(tt.text, tt.author, tt.category)

			if tt.wantField != "" {
				require.Error(t, err)

				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				assert.Equal(t, Quote{}, q)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Stay hungry", q.Text)
			assert.Equal(t, "Jobs", q.Author)
			assert.Equal(t, "Motivation", q.Category)
			assert.False(t, q.IsSynced())
			assert.Nil(t, q.UpdatedAt)
		})
	}
}

func TestQuote_NewerThan(t *testing.T) {
	early := ts("2024-01-01T00:00:00Z")
	late := ts("2024-06-01T00:00:00Z")

	tests := []struct {
		name     string
		a, b     *time.Time
		expected bool
	}{
		{"later beats earlier", late, early, true},
		{"earlier loses", early, late, false},
		{"equal is not newer", early, ts("2024-01-01T00:00:00Z"), false},
		{"present beats absent", early, nil, true},
		{"absent never wins", nil, early, false},
		{"both absent", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Quote{ID: "1", UpdatedAt: tt.a}
			b := Quote{ID: "1", UpdatedAt: tt.b}
			assert.Equal(t, tt.expected, a.NewerThan(b))
		})
	}
}

func TestQuote_Equal(t *testing.T) {
	utc := ts("2024-01-01T12:00:00Z")
	offset := utc.In(time.FixedZone("CET", 3600))

	base := Quote{ID: "1", Text: "T", Author: "A", Category: "C", UpdatedAt: utc}

	assert.True(t, base.Equal(Quote{ID: "1", Text: "T", Author: "A", Category: "C", UpdatedAt: &offset}))
	assert.False(t, base.Equal(Quote{ID: "1", Text: "T", Author: "A", Category: "C"}))
	assert.False(t, base.Equal(Quote{ID: "2", Text: "T", Author: "A", Category: "C", UpdatedAt: utc}))
	assert.True(t, Quote{Text: "T"}.Equal(Quote{Text: "T"}))
}

func TestQuote_CloneDoesNotShareTimestamp(t *testing.T) {
	q := Quote{ID: "1", UpdatedAt: ts("2024-01-01T00:00:00Z")}
	c := q.clone()

	*c.UpdatedAt = c.UpdatedAt.Add(time.Hour)

	assert.Equal(t, "2024-01-01T00:00:00Z", q.UpdatedAt.Format(time.RFC3339))
}
