package stocks

import (
	"context"
	"net/http"
	"strconv"
	"substock/internal/inventory/ledger"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"substock/pkg/roles"
	"substock/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
)

type Service interface {
	AdjustStock(ctx context.Context, req ledger.AdjustmentRequest) (*ledger.AdjustmentResult, error)
	Dispense(ctx context.Context, req DispenseRequest) (*DispenseResult, error)
}

type Reader interface {
	Snapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error)
	Snapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error)
	History(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error)
	Reconcile(ctx context.Context, stockID int) (*models.StockReconciliation, error)
}

type StockHandler struct {
	service Service
	reader  Reader
}

func NewStockHandler(s Service, r Reader) *StockHandler {
	return &StockHandler{service: s, reader: r}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/stocks", security.Authorize(roles.Staff), h.GetStocks)
	router.GET("/stocks/:id", security.Authorize(roles.Staff), h.GetStock)
	router.GET("/stocks/:id/transactions", security.Authorize(roles.Staff), h.GetTransactions)
	router.GET("/stocks/:id/reconcile", security.Authorize(roles.Pharmacist), h.Reconcile)
	router.PATCH("/stocks/:id", security.Authorize(roles.Pharmacist), h.AdjustStock)
	router.POST("/stocks/:id/dispense", security.Authorize(roles.Staff), h.Dispense)
}

type AdjustStockResponse struct {
	Stock           *models.StockSnapshot   `json:"stock"`
	Transaction     models.StockTransaction `json:"transaction"`
	TransactionInfo ledger.TransactionInfo  `json:"transaction_info"`
}

func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest

	if err := c.ShouldBindUri(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid URI parameters", "details": err.Error()})
		return
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	if req.NewTotalQuantity == nil {
		custom_error.Abort(c, "Invalid request payload", custom_error.NewValidationError("total_quantity", "is required"))
		return
	}

	actorID, err := security.ActorID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
		return
	}

	adjustment := ledger.AdjustmentRequest{
		StockID:          req.ID,
		DepartmentID:     req.DepartmentID,
		NewTotalQuantity: *req.NewTotalQuantity,
		Reference:        req.Reference,
		ActorID:          actorID,
		NewMinimumStock:  req.NewMinimumStock,
		ExpectedVersion:  req.ExpectedVersion,
	}
	if req.Reason != nil {
		adjustment.Reason = *req.Reason
	}

	result, err := h.service.AdjustStock(c.Request.Context(), adjustment)
	if err != nil {
		custom_error.Abort(c, "Unable to adjust stock", err)
		return
	}

	snapshot, err := h.reader.Snapshot(c.Request.Context(), result.Stock.ID)
	if err != nil {
		custom_error.Abort(c, "Stock adjusted but could not be reloaded", err)
		return
	}

	c.JSON(http.StatusOK, AdjustStockResponse{
		Stock:           snapshot,
		Transaction:     result.Transaction,
		TransactionInfo: result.TransactionInfo,
	})
}

func (h *StockHandler) Dispense(c *gin.Context) {
	stockID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid stock ID"})
		return
	}

	var req DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	actorID, err := security.ActorID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
		return
	}
	req.StockID = stockID
	req.ActorID = actorID

	result, err := h.service.Dispense(c.Request.Context(), req)
	if err != nil {
		custom_error.Abort(c, "Unable to dispense stock", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *StockHandler) GetStocks(c *gin.Context) {
	var query StockQuery

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	snapshots, err := h.reader.Snapshots(c.Request.Context(), models.StockFilter{
		DepartmentID: query.DepartmentID,
		DrugID:       query.DrugID,
		LowStock:     query.LowStock,
	})
	if err != nil {
		custom_error.Abort(c, "Failed to fetch stocks", err)
		return
	}

	c.JSON(http.StatusOK, snapshots)
}

func (h *StockHandler) GetStock(c *gin.Context) {
	stockID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid stock ID"})
		return
	}

	snapshot, err := h.reader.Snapshot(c.Request.Context(), stockID)
	if err != nil {
		custom_error.Abort(c, "Failed to fetch stock", err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *StockHandler) GetTransactions(c *gin.Context) {
	stockID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid stock ID"})
		return
	}

	var query HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	filter := models.TransactionFilter{StockID: stockID, Limit: query.Limit, Offset: query.Offset}
	for _, value := range query.Kinds {
		kind, err := metadata.NewTransactionKind(value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction kind", "details": err.Error()})
			return
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	if filter.From, err = parseDate(query.From); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid from date", "details": err.Error()})
		return
	}
	if filter.To, err = parseDate(query.To); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid to date", "details": err.Error()})
		return
	}

	page, err := h.reader.History(c.Request.Context(), filter)
	if err != nil {
		custom_error.Abort(c, "Failed to fetch transactions", err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *StockHandler) Reconcile(c *gin.Context) {
	stockID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid stock ID"})
		return
	}

	reconciliation, err := h.reader.Reconcile(c.Request.Context(), stockID)
	if err != nil {
		custom_error.Abort(c, "Failed to reconcile stock", err)
		return
	}

	c.JSON(http.StatusOK, reconciliation)
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
