package sequences

import (
	"context"
	"net/http"
	"time"

	"crm_engine_backend/platform/httpkit"
	"crm_engine_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Manager is the engine surface used by the handler.
type Manager interface {
	CreateSequence(ctx context.Context, seq Sequence) (Sequence, error)
	Enroll(ctx context.Context, tenantID, contactID, sequenceID uuid.UUID, now time.Time) (Enrollment, error)
}

type Handler struct {
	svc Manager
	val *validator.Validator
}

func NewHandler(svc Manager, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.POST("/:id/enrollments", h.Enroll)
}

func (h *Handler) Create(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req CreateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	steps := make([]Step, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = Step{DelayDays: s.DelayDays, Payload: Payload{Subject: s.Subject, Body: s.Body}}
	}
	seq, err := h.svc.CreateSequence(c.Request.Context(), Sequence{
		TenantID: id.TenantID(),
		Name:     req.Name,
		Kind:     req.Kind,
		Steps:    steps,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, seq)
}

func (h *Handler) Enroll(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	sequenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	enrollment, err := h.svc.Enroll(c.Request.Context(), id.TenantID(), req.ContactID, sequenceID, time.Now().UTC())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, enrollment)
}
