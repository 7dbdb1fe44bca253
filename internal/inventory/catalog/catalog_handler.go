package catalog

import (
	"net/http"
	"strconv"
	custom_error "substock/pkg/errors"
	"substock/pkg/roles"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CatalogHandler struct {
	Service *CatalogService
}

func NewCatalogHandler(s *CatalogService) *CatalogHandler {
	return &CatalogHandler{Service: s}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/drugs", security.Authorize(roles.Staff), h.GetDrugs)
	router.GET("/drugs/:id", security.Authorize(roles.Staff), h.GetDrug)
	router.PATCH("/drugs/:id/price", security.Authorize(roles.Admin), h.UpdatePrice)
}

func (h *CatalogHandler) GetDrugs(c *gin.Context) {
	drugs, err := h.Service.ListDrugs(c.Request.Context(), c.Query("search"))
	if err != nil {
		custom_error.Abort(c, "Unable to get drugs", err)
		return
	}

	c.JSON(http.StatusOK, drugs)
}

func (h *CatalogHandler) GetDrug(c *gin.Context) {
	drugID, err := strconv.Atoi(c.Param("id"))
	if err != nil || drugID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drug ID parameter, must be an integer"})
		return
	}

	drug, err := h.Service.GetDrug(c.Request.Context(), drugID)
	if err != nil {
		custom_error.Abort(c, "Unable to get drug", err)
		return
	}

	c.JSON(http.StatusOK, drug)
}

type UpdatePriceRequest struct {
	UnitPrice *decimal.Decimal `json:"unit_price" binding:"required"`
}

func (h *CatalogHandler) UpdatePrice(c *gin.Context) {
	drugID, err := strconv.Atoi(c.Param("id"))
	if err != nil || drugID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drug ID parameter, must be an integer"})
		return
	}

	var req UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	actorID, err := security.ActorID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
		return
	}

	update, err := h.Service.UpdatePrice(c.Request.Context(), PriceUpdateRequest{
		DrugID:    drugID,
		UnitPrice: *req.UnitPrice,
		ActorID:   actorID,
	})
	if err != nil {
		custom_error.Abort(c, "Unable to update drug price", err)
		return
	}

	c.JSON(http.StatusOK, update)
}
