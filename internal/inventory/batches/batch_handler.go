package batches

import (
	"net/http"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"substock/pkg/roles"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	service *ReceiptService
}

func NewBatchHandler(s *ReceiptService) *BatchHandler {
	return &BatchHandler{service: s}
}

func (h *BatchHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/batches", security.Authorize(roles.Pharmacist), h.ReceiveBatch)
	router.GET("/batches", security.Authorize(roles.Staff), h.GetBatches)
	router.GET("/batches/expiring", security.Authorize(roles.Staff), h.GetExpiringBatches)
}

func (h *BatchHandler) ReceiveBatch(c *gin.Context) {
	var req ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	actorID, err := security.ActorID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
		return
	}
	req.ActorID = actorID

	receipt, err := h.service.ReceiveBatch(c.Request.Context(), req)
	if err != nil {
		custom_error.Abort(c, "Unable to receive batch", err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

func (h *BatchHandler) GetBatches(c *gin.Context) {
	var query struct {
		DrugID       *int `form:"drug_id"`
		DepartmentID *int `form:"department_id"`
		IncludeEmpty bool `form:"include_empty"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	batches, err := h.service.ListBatches(c.Request.Context(), models.BatchFilter{
		DrugID:       query.DrugID,
		DepartmentID: query.DepartmentID,
		IncludeEmpty: query.IncludeEmpty,
	})
	if err != nil {
		custom_error.Abort(c, "Failed to fetch batches", err)
		return
	}

	c.JSON(http.StatusOK, batches)
}

func (h *BatchHandler) GetExpiringBatches(c *gin.Context) {
	var query struct {
		WithinDays   int  `form:"within_days,default=90"`
		DepartmentID *int `form:"department_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	batches, err := h.service.ExpiringBatches(c.Request.Context(), query.WithinDays, query.DepartmentID)
	if err != nil {
		custom_error.Abort(c, "Failed to fetch expiring batches", err)
		return
	}

	c.JSON(http.StatusOK, batches)
}
