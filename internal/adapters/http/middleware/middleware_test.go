package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotesync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIDMiddleware(t *testing.T) {
	t.Parallel()

	type idCase struct {
		name       string
		middleware gin.HandlerFunc
		header     string
		fromGin    func(*gin.Context) string
		fromCtx    func(context.Context) string
	}

	kinds := []idCase{
		{"request ID", RequestID(), HeaderRequestID, GetRequestID, RequestIDFromContext},
		{"correlation ID", CorrelationID(), HeaderCorrelationID, GetCorrelationID, CorrelationIDFromContext},
	}

	inputs := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{name: "generated when absent", incoming: ""},
		{name: "passed through when present", incoming: "existing-123", wantSame: true},
		{name: "replaced when oversized", incoming: strings.Repeat("a", maxIDLength+1)},
	}

	for _, kind := range kinds {
		for _, in := range inputs {
			t.Run(kind.name+"/"+in.name, func(t *testing.T) {
				t.Parallel()

				var fromGin, fromCtx string

				router := gin.New()
				router.Use(kind.middleware)
				router.GET("/test", func(c *gin.Context) {
					fromGin = kind.fromGin(c)
					fromCtx = kind.fromCtx(c.Request.Context())
					c.Status(http.StatusOK)
				})

				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				if in.incoming != "" {
					req.Header.Set(kind.header, in.incoming)
				}

				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				require.Equal(t, http.StatusOK, w.Code)

				echoed := w.Header().Get(kind.header)
				assert.NotEmpty(t, echoed)
				assert.Equal(t, echoed, fromGin)
				assert.Equal(t, echoed, fromCtx, "the outbound client reads the ID from the request context")

				if in.wantSame {
					assert.Equal(t, in.incoming, echoed)
				} else {
					_, err := uuid.Parse(echoed)
					assert.NoError(t, err)
				}
			})
		}
	}
}

func TestIDMiddleware_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
		c.Next()
	})
	router.Use(RequestID(), CorrelationID())
	router.GET("/test", func(c *gin.Context) {
		logging.FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderCorrelationID, "corr-1")

	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
}

func TestGetIDs_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, GetRequestID(c))
	assert.Empty(t, GetCorrelationID(c))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		skip      []string
		wantLevel string
		wantLog   bool
	}{
		{name: "success at info", path: "/api/v1/quotes", status: http.StatusOK, wantLevel: "INFO", wantLog: true},
		{name: "client error at warn", path: "/api/v1/quotes", status: http.StatusBadRequest, wantLevel: "WARN", wantLog: true},
		{name: "server error at error", path: "/api/v1/quotes", status: http.StatusServiceUnavailable, wantLevel: "ERROR", wantLog: true},
		{name: "health paths skipped", path: "/-/live", status: http.StatusOK},
		{name: "configured path skipped", path: "/api/v1/filter", status: http.StatusOK, skip: []string{"/api/v1/filter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			router := gin.New()
			router.Use(Logging(logger, tt.skip...))
			router.GET(tt.path, func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path+"?category=Life", nil))

			require.Equal(t, tt.status, w.Code)

			if !tt.wantLog {
				assert.Empty(t, buf.String())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, tt.path, entry["path"])
			assert.Equal(t, tt.path, entry["route"])
			assert.Equal(t, "category=Life", entry["query"])
			assert.InDelta(t, float64(tt.status), entry["status"], 0)
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normal request passes through", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(logger))
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("panicking handler returns 500 envelope", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		router := gin.New()
		router.Use(Recovery(slog.New(slog.NewJSONHandler(&buf, nil))))
		router.GET("/test", func(*gin.Context) {
			panic("something went wrong")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)

		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrorCodeInternal, resp.Error.Code)

		assert.Contains(t, buf.String(), "panic recovered")
		assert.Contains(t, buf.String(), "something went wrong")
	})

	t.Run("panic after write keeps the response", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(logger))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusAccepted, "partial")
			panic("late")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "partial", w.Body.String())
	})
}

func TestTimeout_SetsContextDeadline(t *testing.T) {
	t.Parallel()

	var (
		hasDeadline bool
		remaining   time.Duration
	)

	router := gin.New()
	router.Use(Timeout(5 * time.Second))
	router.GET("/test", func(c *gin.Context) {
		var deadline time.Time
		deadline, hasDeadline = c.Request.Context().Deadline()
		remaining = time.Until(deadline)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hasDeadline)
	assert.LessOrEqual(t, remaining, 5*time.Second)
	assert.Greater(t, remaining, 4*time.Second)
}

func TestTimeout_ExpiredDeadlineRendersTimeout(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Timeout(10 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		dto.HandleError(c, c.Request.Context().Err())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeTimeout, resp.Error.Code)
}
