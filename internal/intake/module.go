package intake

import (
	apphttp "crm_engine_backend/internal/http"
	"crm_engine_backend/platform/validator"
)

// Module is the intake bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, val), service: svc}
}

func (m *Module) Name() string {
	return "intake"
}

func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts intake on the tenant-protected group behind the
// per-IP rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/intake")
	if ctx.RateLimiter != nil {
		group.Use(ctx.RateLimiter.RateLimit())
	}
	m.handler.RegisterRoutes(group)
}
