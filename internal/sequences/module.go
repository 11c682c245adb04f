package sequences

import (
	apphttp "crm_engine_backend/internal/http"
	"crm_engine_backend/platform/validator"
)

// Module exposes sequence definitions and enrollments over HTTP.
type Module struct {
	handler *Handler
	engine  *Engine
}

func NewModule(engine *Engine, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(engine, val), engine: engine}
}

func (m *Module) Name() string {
	return "sequences"
}

func (m *Module) Engine() *Engine {
	return m.engine
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/sequences"))
}
