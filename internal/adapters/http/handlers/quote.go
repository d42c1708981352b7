package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotesync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotesync/internal/app"
	"github.com/jsamuelsen/quotesync/internal/domain"
)

// ExportFilename is offered to clients downloading the collection.
const ExportFilename = "quotes.json"

// QuoteManager is the part of *app.QuoteService the handlers use.
type QuoteManager interface {
	Filter(ctx context.Context, category string) []domain.Quote
	Categories(ctx context.Context) []string
	Random(ctx context.Context, category string) (domain.Quote, error)
	AddLocal(ctx context.Context, text, author, category string) (domain.Quote, error)
	SelectFilter(ctx context.Context, category string) error
	LastFilter(ctx context.Context) string
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) (int, error)
	PushPending(ctx context.Context) (app.PushReport, error)
}

// SyncTrigger runs a sync cycle on demand. *app.Syncer implements it.
type SyncTrigger interface {
	TriggerNow(ctx context.Context) (domain.MergeReport, error)
}

// QuoteHandler serves the quote API.
type QuoteHandler struct {
	quotes QuoteManager
	syncer SyncTrigger
}

// NewQuoteHandler creates a quote handler.
func NewQuoteHandler(quotes QuoteManager, syncer SyncTrigger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		syncer: syncer,
	}
}

// ListQuotes handles GET /api/v1/quotes?category=.
// Without a category every quote is returned.
//
// @Summary List quotes
// @Tags quotes
// @Produce json
// @Param category query string false "Category, or all"
// @Success 200 {object} dto.QuoteListResponse
// @Router /api/v1/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	var q dto.CategoryQuery
	if err := dto.BindQueryAndValidate(c, &q); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteListResponse(h.quotes.Filter(c.Request.Context(), q.Category)))
}

// RandomQuote handles GET /api/v1/quotes/random?category=.
// Without a category the last selected filter applies.
//
// @Summary Get a random quote
// @Tags quotes
// @Produce json
// @Param category query string false "Category, or all"
// @Success 200 {object} dto.QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/quotes/random [get]
func (h *QuoteHandler) RandomQuote(c *gin.Context) {
	var q dto.CategoryQuery
	if err := dto.BindQueryAndValidate(c, &q); err != nil {
		dto.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()

	category := q.Category
	if category == "" {
		category = h.quotes.LastFilter(ctx)
	}

	quote, err := h.quotes.Random(ctx, category)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(quote))
}

// AddQuote handles POST /api/v1/quotes.
//
// @Summary Add a local quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param quote body dto.AddQuoteRequest true "Quote"
// @Success 201 {object} dto.QuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) AddQuote(c *gin.Context) {
	var req dto.AddQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	quote, err := h.quotes.AddLocal(c.Request.Context(), req.Text, req.Author, req.Category)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewQuoteResponse(quote))
}

// ListCategories handles GET /api/v1/categories.
//
// @Summary List categories
// @Tags quotes
// @Produce json
// @Success 200 {object} dto.CategoriesResponse
// @Router /api/v1/categories [get]
func (h *QuoteHandler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, dto.CategoriesResponse{Categories: h.quotes.Categories(c.Request.Context())})
}

// GetFilter handles GET /api/v1/filter.
func (h *QuoteHandler) GetFilter(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FilterResponse{Category: h.quotes.LastFilter(c.Request.Context())})
}

// SetFilter handles PUT /api/v1/filter.
//
// @Summary Select the category filter
// @Tags quotes
// @Accept json
// @Produce json
// @Param filter body dto.FilterRequest true "Filter"
// @Success 200 {object} dto.FilterResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/filter [put]
func (h *QuoteHandler) SetFilter(c *gin.Context) {
	var req dto.FilterRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()

	if err := h.quotes.SelectFilter(ctx, req.Category); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FilterResponse{Category: h.quotes.LastFilter(ctx)})
}

// Export handles GET /api/v1/export. The body is the snapshot JSON,
// offered as a file download.
//
// @Summary Export the collection
// @Tags transfer
// @Produce json
// @Success 200 {array} dto.QuoteResponse
// @Router /api/v1/export [get]
func (h *QuoteHandler) Export(c *gin.Context) {
	data, err := h.quotes.Export(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	c.Data(http.StatusOK, "application/json", data)
}

// Import handles POST /api/v1/import. The raw body must be a snapshot
// array; a malformed one is rejected whole with INVALID_FORMAT.
//
// @Summary Import quotes
// @Tags transfer
// @Accept json
// @Produce json
// @Success 200 {object} dto.ImportResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/import [post]
func (h *QuoteHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.HandleError(c, domain.NewFormatError("payload too large", err))
			return
		}

		dto.HandleError(c, err)

		return
	}

	n, err := h.quotes.Import(c.Request.Context(), data)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ImportResponse{Imported: n})
}

// Sync handles POST /api/v1/sync: one fetch-and-merge cycle.
//
// @Summary Sync with the remote source
// @Tags sync
// @Produce json
// @Success 200 {object} dto.MergeReportResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/sync [post]
func (h *QuoteHandler) Sync(c *gin.Context) {
	report, err := h.syncer.TriggerNow(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMergeReportResponse(report))
}

// PushPending handles POST /api/v1/sync/push.
//
// @Summary Push unsynced quotes
// @Tags sync
// @Produce json
// @Success 200 {object} dto.PushReportResponse
// @Router /api/v1/sync/push [post]
func (h *QuoteHandler) PushPending(c *gin.Context) {
	report, err := h.quotes.PushPending(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPushReportResponse(report))
}

// RegisterQuoteRoutes registers the quote API on rg.
func (h *QuoteHandler) RegisterQuoteRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	quotes.GET("", h.ListQuotes)
	quotes.POST("", h.AddQuote)
	quotes.GET("/random", h.RandomQuote)

	rg.GET("/categories", h.ListCategories)
	rg.GET("/filter", h.GetFilter)
	rg.PUT("/filter", h.SetFilter)
	rg.GET("/export", h.Export)
	rg.POST("/import", h.Import)

	sync := rg.Group("/sync")
	sync.POST("", h.Sync)
	sync.POST("/push", h.PushPending)
}

var (
	_ QuoteManager = (*app.QuoteService)(nil)
	_ SyncTrigger  = (*app.Syncer)(nil)
)
