package batches

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"substock/internal/cache"
	"substock/internal/inventory/inventorytest"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/inventory/ledger"
	"substock/pkg/auditlog"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type receiptFixture struct {
	store   *inventorytest.Store
	service *ReceiptService
	drug    int
	ward    int
}

func newReceiptFixture() *receiptFixture {
	store := inventorytest.NewStore()
	logger := zap.NewNop()
	allocator := NewAllocator(store)
	l := ledger.NewLedger(store, store, store, allocator, logger)
	il := inventorylog.NewInventoryLog(auditlog.NewAuditLog(store, logger))

	return &receiptFixture{
		store:   store,
		service: NewReceiptService(store, store, store, store, l, cache.NoopCache{}, il, logger),
		drug:    store.AddDrug("PARA500", "Paracetamol 500 mg", "2.50"),
		ward:    store.AddDepartment("PHA", "Central Pharmacy"),
	}
}

func (f *receiptFixture) request(lotNumber string, quantity int) ReceiptRequest {
	return ReceiptRequest{
		DrugID:       f.drug,
		DepartmentID: f.ward,
		LotNumber:    lotNumber,
		ExpiryDate:   inventorytest.Date("2027-03-31"),
		Manufacturer: "GPO",
		Quantity:     quantity,
		Reference:    "PO-2025-001",
		ActorID:      3,
	}
}

func TestReceiveBatch(t *testing.T) {
	f := newReceiptFixture()
	ctx := context.Background()

	receipt, err := f.service.ReceiveBatch(ctx, f.request("LOT-1", 100))
	require.NoError(t, err)

	assert.Equal(t, metadata.KindReceive, receipt.Transaction.Kind)
	assert.Equal(t, 0, receipt.Transaction.BeforeQuantity)
	assert.Equal(t, 100, receipt.Transaction.AfterQuantity)
	assert.Equal(t, "250.00", receipt.Transaction.TotalCost.StringFixed(2))
	assert.Equal(t, 100, receipt.Stock.TotalQuantity)
	assert.Equal(t, "250.00", receipt.Stock.TotalValue.StringFixed(2))
	assert.Equal(t, 100, receipt.Batch.RemainingQuantity)

	again, err := f.service.ReceiveBatch(ctx, f.request("LOT-1", 20))
	require.NoError(t, err)
	assert.Equal(t, receipt.Batch.ID, again.Batch.ID, "same lot is topped up")
	assert.Equal(t, 120, again.Batch.RemainingQuantity)
	assert.Equal(t, 120, f.store.BatchTotal(f.drug, f.ward))

	total, err := ledger.Replay(f.store.Entries(receipt.Stock.ID))
	require.NoError(t, err)
	assert.Equal(t, 120, total)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "receive", logs[0].Action)
	assert.Equal(t, "stock", logs[0].ResourceType)
}

func TestReceiveBatch_UnitCostOverride(t *testing.T) {
	f := newReceiptFixture()
	req := f.request("LOT-1", 10)
	cost := decimal.RequireFromString("3.10")
	req.UnitCost = &cost

	receipt, err := f.service.ReceiveBatch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "3.10", receipt.Batch.UnitCost.StringFixed(2))
	assert.Equal(t, "31.00", receipt.Transaction.TotalCost.StringFixed(2))
}

func TestReceiveBatch_SameLotWithDifferentExpiryIsRejected(t *testing.T) {
	f := newReceiptFixture()
	ctx := context.Background()

	first, err := f.service.ReceiveBatch(ctx, f.request("LOT-1", 100))
	require.NoError(t, err)

	req := f.request("LOT-1", 30)
	req.ExpiryDate = inventorytest.Date("2026-12-31")
	_, err = f.service.ReceiveBatch(ctx, req)

	require.ErrorIs(t, err, custom_error.ErrValidation)
	var validation *custom_error.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "expiry_date", validation.Property)
	assert.Equal(t, 100, f.store.BatchTotal(f.drug, f.ward))
	assert.Equal(t, 100, f.store.Stock(first.Stock.ID).TotalQuantity)
	assert.Len(t, f.store.Entries(first.Stock.ID), 1)
}

func TestReceiveBatch_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *ReceiptRequest)
		expected error
	}{
		{"reserved lot prefix", func(r *ReceiptRequest) { r.LotNumber = "ADJ-20250101" }, custom_error.ErrValidation},
		{"missing expiry", func(r *ReceiptRequest) { r.ExpiryDate = nil }, custom_error.ErrValidation},
		{"zero quantity", func(r *ReceiptRequest) { r.Quantity = 0 }, custom_error.ErrValidation},
		{"blank lot", func(r *ReceiptRequest) { r.LotNumber = "   " }, custom_error.ErrValidation},
		{"unknown drug", func(r *ReceiptRequest) { r.DrugID = 4040 }, custom_error.ErrNotFound},
		{"reference too long", func(r *ReceiptRequest) { r.Reference = strings.Repeat("P", 65) }, custom_error.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReceiptFixture()
			req := f.request("LOT-1", 10)
			tt.mutate(&req)

			_, err := f.service.ReceiveBatch(context.Background(), req)

			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, 0, f.store.EntryCount())
			assert.Equal(t, 0, f.store.BatchTotal(f.drug, f.ward))
		})
	}
}

func TestExpiringBatches(t *testing.T) {
	f := newReceiptFixture()
	f.service.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	f.store.SeedStock(f.drug, f.ward, 0,
		inventorytest.Lot{Number: "SOON", Expiry: "2025-02-15", Quantity: 5},
		inventorytest.Lot{Number: "LATER", Expiry: "2026-02-15", Quantity: 5},
		inventorytest.Lot{Number: "NONE", Quantity: 5},
	)

	batches, err := f.service.ExpiringBatches(context.Background(), 90, &f.ward)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "SOON", batches[0].LotNumber)

	_, err = f.service.ExpiringBatches(context.Background(), -1, nil)
	assert.ErrorIs(t, err, custom_error.ErrValidation)
}

func setupRouter(role string, h *BatchHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/", func(c *gin.Context) {
		c.Set("userID", "3")
		c.Set("role", role)
	})
	h.RegisterRoutes(group)
	return router
}

func TestBatchHandler_ReceiveBatch(t *testing.T) {
	f := newReceiptFixture()
	body, _ := json.Marshal(map[string]interface{}{
		"drug_id":       f.drug,
		"department_id": f.ward,
		"lot_number":    "LOT-9",
		"expiry_date":   "2027-01-31T00:00:00Z",
		"quantity":      40,
	})

	t.Run("staff cannot receive", func(t *testing.T) {
		router := setupRouter("staff", NewBatchHandler(f.service))
		req, _ := http.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("pharmacist receives", func(t *testing.T) {
		router := setupRouter("pharmacist", NewBatchHandler(f.service))
		req, _ := http.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		var receipt Receipt
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
		assert.Equal(t, 40, receipt.Stock.TotalQuantity)
		assert.Equal(t, 3, receipt.Transaction.UserID)
	})

	t.Run("reserved lot prefix is a bad request", func(t *testing.T) {
		bad, _ := json.Marshal(map[string]interface{}{
			"drug_id":       f.drug,
			"department_id": f.ward,
			"lot_number":    "ADJ-1",
			"expiry_date":   "2027-01-31T00:00:00Z",
			"quantity":      1,
		})
		router := setupRouter("pharmacist", NewBatchHandler(f.service))
		req, _ := http.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(bad))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "validation_error", response["code"])
		assert.Equal(t, "lot_number", response["property"])
	})

	t.Run("list batches of the drug", func(t *testing.T) {
		router := setupRouter("staff", NewBatchHandler(f.service))
		req, _ := http.NewRequest(http.MethodGet, "/batches?drug_id="+strconv.Itoa(f.drug), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var batches []models.DrugBatch
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batches))
		assert.Len(t, batches, 1)
	})
}
