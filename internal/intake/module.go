package intake

import (
	apphttp "fieldops_backend/internal/http"
)

// Module is the intake bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule wraps svc for route registration.
func NewModule(svc *Service) *Module {
	return &Module{handler: NewHandler(svc), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "intake"
}

// Service returns the intake service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the public lead form.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Public)
}

var _ apphttp.Module = (*Module)(nil)
