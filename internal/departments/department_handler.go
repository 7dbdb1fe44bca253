package departments

import (
	"context"
	"net/http"
	"strconv"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"substock/pkg/roles"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
)

type StockReader interface {
	Snapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error)
}

type Store interface {
	GetDepartments(ctx context.Context) ([]models.Department, error)
	GetDepartment(ctx context.Context, departmentID int) (*models.Department, error)
	PersistDepartment(ctx context.Context, department *models.Department) error
	UpdateDepartment(ctx context.Context, departmentID int, req UpdateDepartmentRequest) (*models.Department, error)
}

type DepartmentHandler struct {
	Repository Store
	Stocks     StockReader
}

type CreateDepartmentRequest struct {
	Code    string  `json:"code" binding:"required"`
	Name    string  `json:"name" binding:"required"`
	Details *string `json:"details"`
}

type UpdateDepartmentRequest struct {
	Name    *string `json:"name"`
	Details *string `json:"details"`
}

func NewDepartmentHandler(r Store, s StockReader) *DepartmentHandler {
	return &DepartmentHandler{Repository: r, Stocks: s}
}

func (h *DepartmentHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/departments", security.Authorize(roles.Staff), h.GetDepartments)
	router.GET("/departments/:id", security.Authorize(roles.Staff), h.GetDepartment)
	router.GET("/departments/:id/stocks", security.Authorize(roles.Staff), h.GetDepartmentStocks)
	router.POST("/departments", security.Authorize(roles.Admin), h.CreateDepartment)
	router.PATCH("/departments/:id", security.Authorize(roles.Admin), h.UpdateDepartment)
}

func (h *DepartmentHandler) GetDepartments(c *gin.Context) {
	departments, err := h.Repository.GetDepartments(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not list departments", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, departments)
}

func (h *DepartmentHandler) GetDepartment(c *gin.Context) {
	departmentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || departmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department ID parameter, must be an integer"})
		return
	}

	department, err := h.Repository.GetDepartment(c.Request.Context(), departmentID)
	if err != nil {
		custom_error.Abort(c, "Could not get department", err)
		return
	}

	c.JSON(http.StatusOK, department)
}

// GetDepartmentStocks lists what a department holds, optionally only the low stock lines.
func (h *DepartmentHandler) GetDepartmentStocks(c *gin.Context) {
	departmentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || departmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department ID parameter, must be an integer"})
		return
	}

	stocks, err := h.Stocks.Snapshots(c.Request.Context(), models.StockFilter{
		DepartmentID: &departmentID,
		LowStock:     c.Query("low_stock") == "true",
	})
	if err != nil {
		custom_error.Abort(c, "Could not get department stocks", err)
		return
	}

	c.JSON(http.StatusOK, stocks)
}

func (h *DepartmentHandler) CreateDepartment(c *gin.Context) {
	var req CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	department := models.Department{Code: req.Code, Name: req.Name, Details: req.Details}
	if err := h.Repository.PersistDepartment(c.Request.Context(), &department); err != nil {
		custom_error.Abort(c, "Could not insert department", err)
		return
	}

	c.JSON(http.StatusCreated, department)
}

func (h *DepartmentHandler) UpdateDepartment(c *gin.Context) {
	departmentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || departmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department ID parameter, must be an integer"})
		return
	}

	var req UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	department, err := h.Repository.UpdateDepartment(c.Request.Context(), departmentID, req)
	if err != nil {
		custom_error.Abort(c, "Could not update department", err)
		return
	}

	c.JSON(http.StatusOK, department)
}
