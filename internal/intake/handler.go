package intake

import (
	"context"
	"net/http"
	"time"

	"crm_engine_backend/platform/httpkit"
	"crm_engine_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Receiver is the service surface used by the handler.
type Receiver interface {
	Receive(ctx context.Context, sig Signal, now time.Time) (Result, error)
}

type Handler struct {
	svc Receiver
	val *validator.Validator
}

func NewHandler(svc Receiver, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Receive)
}

func (h *Handler) Receive(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.svc.Receive(c.Request.Context(), Signal{
		TenantID:  id.TenantID(),
		Channel:   req.Channel,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company:   req.Company,
		Phone:     req.Phone,
		JobTitle:  req.JobTitle,
		Message:   req.Message,
		Interests: req.Interests,
	}, time.Now().UTC())
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, IntakeResponse(result))
}
