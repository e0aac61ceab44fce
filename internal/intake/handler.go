package intake

import (
	"net/http"

	"fieldops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

// Handler serves the public lead form.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the public intake routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads", h.SubmitLead)
}

// SubmitLead handles POST /api/v1/public/leads
func (h *Handler) SubmitLead(c *gin.Context) {
	var req SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.SubmitLead(c.Request.Context(), httpkit.ClientIP(c), req)
	if httpkit.HandleError(c, err) {
		return
	}
	if result.Ignored {
		httpkit.JSON(c, http.StatusCreated, gin.H{"ok": true})
		return
	}

	httpkit.JSON(c, http.StatusCreated, gin.H{
		"ok":          true,
		"leadId":      result.LeadID,
		"contactId":   result.ContactID,
		"propertyId":  result.PropertyID,
		"appointment": result.Appointment,
	})
}
