package scheduling

import (
	"net/http"

	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves window suggestions to staff.
type Handler struct {
	engine *Engine
}

// NewHandler creates a Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Suggestions handles GET /api/v1/admin/quotes/:id/suggestions
func (h *Handler) Suggestions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	result, err := h.engine.SuggestWindows(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Module exposes the suggestion endpoint.
type Module struct {
	handler *Handler
}

// NewModule creates the scheduling module.
func NewModule(engine *Engine) *Module {
	return &Module{handler: NewHandler(engine)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "scheduling"
}

// RegisterRoutes mounts the admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/quotes/:id/suggestions", m.handler.Suggestions)
}

var _ apphttp.Module = (*Module)(nil)
