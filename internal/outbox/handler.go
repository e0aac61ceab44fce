package outbox

import (
	"net/http"
	"strconv"

	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes on-demand dispatch to staff.
type Module struct {
	dispatcher *Dispatcher
}

// NewModule creates the outbox module.
func NewModule(dispatcher *Dispatcher) *Module {
	return &Module{dispatcher: dispatcher}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "outbox"
}

// RegisterRoutes mounts the admin dispatch route.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/outbox/dispatch", m.Dispatch)
}

// Dispatch handles POST /api/v1/admin/outbox/dispatch?limit=N
func (m *Module) Dispatch(c *gin.Context) {
	limit := DefaultBatchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	result, err := m.dispatcher.ProcessBatch(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

var _ apphttp.Module = (*Module)(nil)
