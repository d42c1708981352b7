package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quotesync/internal/adapters/clients"
	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/ports"
)

// Defaults for QuoteSourceConfig.
const (
	DefaultPostsPath = "/posts"
	DefaultCategory  = "Synced"
)

var (
	_ ports.QuoteSource   = (*QuoteSource)(nil)
	_ ports.HealthChecker = (*QuoteSource)(nil)
)

// QuoteSourceConfig configures a QuoteSource.
type QuoteSourceConfig struct {
	Client *clients.Client

	// PostsPath is the collection resource. Default "/posts".
	PostsPath string

	// Category is assigned to fetched records; posts carry none.
	// Default "Synced".
	Category string

	// UserID is sent as userId on every push.
	UserID int

	Logger *slog.Logger

	// Now stamps pushed quotes when the source returns no timestamp.
	// Default time.Now.
	Now func() time.Time
}

// QuoteSource reads and writes quotes through a JSONPlaceholder-style
// posts API. A post's title is the quote text and its body the author.
type QuoteSource struct {
	BaseAdapter

	postsPath string
	category  string
	userID    int
	logger    *slog.Logger
	now       func() time.Time
}

// NewQuoteSource creates the adapter. It panics without a client.
func NewQuoteSource(cfg QuoteSourceConfig) *QuoteSource {
	if cfg.Client == nil {
		panic("acl: QuoteSource requires a client")
	}

	s := &QuoteSource{
		BaseAdapter: NewBaseAdapter(cfg.Client, cfg.Client.ServiceName()),
		postsPath:   cfg.PostsPath,
		category:    cfg.Category,
		userID:      cfg.UserID,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}

	if s.postsPath == "" {
		s.postsPath = DefaultPostsPath
	}

	if s.category == "" {
		s.category = DefaultCategory
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.logger = s.logger.With(slog.String("component", "acl.QuoteSource"))

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// post is the wire shape of a remote record.
type post struct {
	ID        domain.RecordID `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	UserID    int             `json:"userId,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

type newPost struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID int    `json:"userId"`
}

// parseUpdatedAt returns nil for an absent or unparseable timestamp, which
// makes the record lose every LWW comparison against a timestamped one.
func parseUpdatedAt(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}

	t = t.UTC()

	return &t
}

// toQuote is the post -> Quote translation. It does not validate; merge
// skips records that are unusable.
func (s *QuoteSource) toQuote(p *post) (domain.Quote, error) {
	return domain.Quote{
		ID:        string(p.ID),
		Text:      p.Title,
		Author:    p.Body,
		Category:  s.category,
		UpdatedAt: parseUpdatedAt(p.UpdatedAt),
	}, nil
}

// FetchAll returns every remote record as a quote.
func (s *QuoteSource) FetchAll(ctx context.Context) ([]domain.Quote, error) {
	body, err := s.Get(ctx, s.postsPath, "fetch quotes")
	if err != nil {
		return nil, err
	}

	posts, err := DecodeResponse[[]post](body, s.ServiceName())
	if err != nil {
		return nil, err
	}

	quotes, err := TranslateSlice[post, domain.Quote](posts, s.toQuote)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "fetched remote quotes", slog.Int("count", len(quotes)))

	return quotes, nil
}

// PushOne creates q remotely and returns it with the assigned ID and
// timestamp. Text, author and category are kept from q.
func (s *QuoteSource) PushOne(ctx context.Context, q domain.Quote) (domain.Quote, error) {
	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}

	payload, err := json.Marshal(newPost{Title: q.Text, Body: q.Author, UserID: s.userID})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("encoding post: %w", err)
	}

	pushedAt := s.now().UTC()

	body, err := s.Post(ctx, s.postsPath, payload, "push quote")
	if err != nil {
		return domain.Quote{}, err
	}

	created, err := DecodeResponse[post](body, s.ServiceName())
	if err != nil {
		return domain.Quote{}, err
	}

	if created.ID == "" {
		return domain.Quote{}, domain.NewUnavailableError(s.ServiceName(), "push response carried no id")
	}

	updatedAt := parseUpdatedAt(created.UpdatedAt)
	if updatedAt == nil {
		updatedAt = &pushedAt
	}

	s.logger.DebugContext(ctx, "pushed quote", slog.String("id", string(created.ID)))

	return domain.Quote{
		ID:        string(created.ID),
		Text:      q.Text,
		Author:    q.Author,
		Category:  q.Category,
		UpdatedAt: updatedAt,
	}, nil
}

// Name implements ports.HealthChecker.
func (s *QuoteSource) Name() string {
	return s.ServiceName()
}

// Check implements ports.HealthChecker by asking for a single post.
func (s *QuoteSource) Check(ctx context.Context) error {
	body, err := s.Get(ctx, s.postsPath+"?_limit=1", "health check")
	if err != nil {
		return err
	}

	_ = body.Close()

	return nil
}
