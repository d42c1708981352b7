// Package handlers provides the gin handlers of the quote API and the
// operational /-/ endpoints.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsamuelsen/quotesync/internal/ports"
)

// defaultReadinessTimeout bounds one readiness probe, every check included.
const defaultReadinessTimeout = 5 * time.Second

// BuildInfo describes the running binary; the first three come from -ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

func NewBuildInfo(version, commit, buildTime string) BuildInfo {
	return BuildInfo{version, commit, buildTime, runtime.Version()}
}

// HealthHandler serves the /-/ endpoints.
type HealthHandler struct {
	registry  ports.HealthRegistry
	buildInfo BuildInfo
	gatherer  prometheus.Gatherer
	timeout   time.Duration
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) HealthOption {
	return func(h *HealthHandler) { h.gatherer = g }
}

// WithReadinessTimeout bounds each readiness probe.
func WithReadinessTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) { h.timeout = d }
}

// NewHealthHandler creates a health handler. A nil registry reports ready.
func NewHealthHandler(registry ports.HealthRegistry, buildInfo BuildInfo, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		registry:  registry,
		buildInfo: buildInfo,
		gatherer:  prometheus.DefaultGatherer,
		timeout:   defaultReadinessTimeout,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// healthBody is the JSON of /-/live and /-/ready.
type healthBody struct {
	Status string                        `json:"status"`
	Checks map[string]*ports.CheckResult `json:"checks,omitempty"`
}

// Live handles /-/live. It checks nothing but the process itself.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, healthBody{Status: "ok"})
}

// Ready handles /-/ready: 503 when a critical check fails, 200 when the
// service is healthy or only degraded.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusOK, healthBody{Status: string(ports.HealthStatusHealthy)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := h.registry.CheckAll(ctx)
	body := healthBody{Status: string(result.Status), Checks: result.Checks}

	if result.Status == ports.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}

// Build handles /-/build.
func (h *HealthHandler) Build(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildInfo)
}

// Register mounts live, ready, build and metrics under /-/.
func (h *HealthHandler) Register(engine *gin.Engine) {
	ops := engine.Group("/-")
	ops.GET("/live", h.Live)
	ops.GET("/ready", h.Ready)
	ops.GET("/build", h.Build)
	ops.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}
