package merge

import (
	"context"
	"net/http"

	"crm_engine_backend/platform/httpkit"
	"crm_engine_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Merger is the service surface used by the handler.
type Merger interface {
	Merge(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (Result, error)
	CleanupSources(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (CleanupResult, error)
	FindDuplicateGroups(ctx context.Context, tenantID uuid.UUID) ([]DuplicateGroup, error)
}

type Handler struct {
	svc Merger
	val *validator.Validator
}

func NewHandler(svc Merger, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Merge)
	rg.GET("", h.ListDuplicates)
	rg.POST("/cleanup", h.Cleanup)
}

func (h *Handler) Merge(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Merge(c.Request.Context(), id.TenantID(), req.TargetContactID, req.SourceContactIDs)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, MergeResponse{
		Success:         true,
		MergedCount:     result.MergedCount,
		TargetContactID: result.TargetContactID,
	})
}

func (h *Handler) ListDuplicates(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	groups, err := h.svc.FindDuplicateGroups(c.Request.Context(), id.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, DuplicatesResponse{Duplicates: groups})
}

func (h *Handler) Cleanup(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CleanupSources(c.Request.Context(), id.TenantID(), req.TargetContactID, req.SourceContactIDs)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, CleanupResponse{
		Success:         true,
		TargetContactID: result.TargetContactID,
		Deleted:         result.Deleted,
		Skipped:         result.Skipped,
	})
}
