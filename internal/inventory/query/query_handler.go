package query

import (
	"net/http"
	custom_error "substock/pkg/errors"
	"substock/pkg/roles"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
)

type resourceLogQuery struct {
	ResourceType string `uri:"resource" binding:"required,oneof=stock transfer drug"`
	ID           *int   `uri:"id" binding:"required"`
}

// QueryHandler exposes the audit trail kept for stocks, transfers and drugs.
type QueryHandler struct {
	service *QueryService
}

func NewQueryHandler(s *QueryService) *QueryHandler {
	return &QueryHandler{service: s}
}

func (h *QueryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/audit-logs/:resource/:id", security.Authorize(roles.Pharmacist), h.RetrieveResourceLog)
}

func (h *QueryHandler) RetrieveResourceLog(c *gin.Context) {
	var query resourceLogQuery
	if err := c.ShouldBindUri(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource", "details": err.Error()})
		return
	}

	logs, err := h.service.ResourceLog(c.Request.Context(), query.ResourceType, *query.ID)
	if err != nil {
		custom_error.Abort(c, "Unable to fetch audit log", err)
		return
	}

	c.JSON(http.StatusOK, logs)
}
