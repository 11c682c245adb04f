package merge

import (
	apphttp "crm_engine_backend/internal/http"
	"crm_engine_backend/platform/validator"
)

// Module is the merge bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "merge"
}

// Service exposes the merge service for the scheduler and CLI.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts merge routes on the tenant-protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/merge"))
}
