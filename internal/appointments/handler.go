package appointments

import (
	"net/http"

	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/platform/httpkit"
	"fieldops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// StatusRequest moves an appointment to a new status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=requested confirmed completed no_show canceled"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// Handler serves appointment routes.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// UpdateStatus handles POST /api/v1/admin/appointments/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	appt, err := h.svc.TransitionStatus(c.Request.Context(), id, req.Status, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, appt)
}

// GetByToken handles GET /api/v1/public/appointments/:token
func (h *Handler) GetByToken(c *gin.Context) {
	appt, err := h.svc.GetByToken(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, appt)
}

// Reschedule handles POST /api/v1/public/appointments/:token/reschedule
func (h *Handler) Reschedule(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	appt, err := h.svc.Reschedule(c.Request.Context(), c.Param("token"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, appt)
}

// Module is the appointments bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates the appointments module.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "appointments"
}

// Service returns the appointments service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the staff and customer routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/appointments/:id/status", m.handler.UpdateStatus)
	ctx.Public.GET("/appointments/:token", m.handler.GetByToken)
	ctx.Public.POST("/appointments/:token/reschedule", m.handler.Reschedule)
}

var _ apphttp.Module = (*Module)(nil)
