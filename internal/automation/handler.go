package automation

import (
	"context"
	"time"

	"crm_engine_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Executor runs one automation pass set.
type Executor interface {
	Run(ctx context.Context, now time.Time) Summary
}

type RunResponse struct {
	Success    bool    `json:"success"`
	Results    Summary `json:"results"`
	DurationMs int64   `json:"durationMs"`
}

type Handler struct {
	runner Executor
}

func NewHandler(runner Executor) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Run)
}

// Run is called by the external scheduler. The shared secret is checked by
// middleware before this runs.
func (h *Handler) Run(c *gin.Context) {
	start := time.Now()
	summary := h.runner.Run(c.Request.Context(), start.UTC())

	httpkit.OK(c, RunResponse{
		Success:    true,
		Results:    summary,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
