package quotes

import (
	"net/http"

	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/internal/pricing"
	"fieldops_backend/platform/httpkit"
	"fieldops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// staffQuote exposes the share token, which customer responses hide.
type staffQuote struct {
	Quote
	ShareToken string `json:"shareToken"`
}

func forStaff(q Quote) staffQuote {
	return staffQuote{Quote: q, ShareToken: q.ShareToken}
}

// Handler serves the staff and customer quote routes.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterAdminRoutes mounts the staff routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/quotes/preview", h.Preview)
	rg.POST("/quotes", h.Create)
	rg.GET("/quotes/:id", h.GetByID)
	rg.POST("/quotes/:id/send", h.Send)
	rg.POST("/quotes/:id/decision", h.DecideByID)
	rg.POST("/quotes/:id/schedule", h.ScheduleJob)
}

// RegisterPublicRoutes mounts the share-link routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/quotes/:token", h.GetByShareToken)
	rg.POST("/quotes/:token/decision", h.DecideByShareToken)
}

// Preview handles POST /api/v1/admin/quotes/preview
func (h *Handler) Preview(c *gin.Context) {
	var req pricing.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	breakdown, err := h.svc.Preview(req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, breakdown)
}

// Create handles POST /api/v1/admin/quotes
func (h *Handler) Create(c *gin.Context) {
	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	quote, err := h.svc.CreateQuote(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, forStaff(quote))
}

// GetByID handles GET /api/v1/admin/quotes/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	quote, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, forStaff(quote))
}

// Send handles POST /api/v1/admin/quotes/:id/send
func (h *Handler) Send(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	quote, err := h.svc.SendQuote(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, forStaff(quote))
}

// DecideByID handles POST /api/v1/admin/quotes/:id/decision
func (h *Handler) DecideByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	quote, err := h.svc.DecideByID(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, forStaff(quote))
}

// ScheduleJob handles POST /api/v1/admin/quotes/:id/schedule
func (h *Handler) ScheduleJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ScheduleJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	job, err := h.svc.ScheduleJob(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, job)
}

// GetByShareToken handles GET /api/v1/public/quotes/:token
func (h *Handler) GetByShareToken(c *gin.Context) {
	quote, err := h.svc.GetByShareToken(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, quote)
}

// DecideByShareToken handles POST /api/v1/public/quotes/:token/decision
func (h *Handler) DecideByShareToken(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	quote, err := h.svc.DecideByShareToken(c.Request.Context(), c.Param("token"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, quote)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

// Module is the quotes bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates the quotes module.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "quotes"
}

// Service returns the quotes service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the staff and share-link routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterAdminRoutes(ctx.Admin)
	m.handler.RegisterPublicRoutes(ctx.Public)
}

var _ apphttp.Module = (*Module)(nil)
