package automation

import (
	apphttp "crm_engine_backend/internal/http"
)

// Module exposes the runner on the secret-protected automation group.
type Module struct {
	handler *Handler
	runner  *Runner
}

func NewModule(runner *Runner) *Module {
	return &Module{handler: NewHandler(runner), runner: runner}
}

func (m *Module) Name() string {
	return "automation"
}

func (m *Module) Runner() *Runner {
	return m.runner
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Automation.Group("/automations"))
}
