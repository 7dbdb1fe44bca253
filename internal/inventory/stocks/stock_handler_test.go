package stocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"substock/internal/inventory/inventorytest"
	"substock/internal/inventory/ledger"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) AdjustStock(ctx context.Context, req ledger.AdjustmentRequest) (*ledger.AdjustmentResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.AdjustmentResult), args.Error(1)
}

func (m *MockService) Dispense(ctx context.Context, req DispenseRequest) (*DispenseResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DispenseResult), args.Error(1)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) Snapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error) {
	args := m.Called(stockID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockSnapshot), args.Error(1)
}

func (m *MockReader) Snapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error) {
	args := m.Called(filter)
	return args.Get(0).([]models.StockSnapshot), args.Error(1)
}

func (m *MockReader) History(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionPage), args.Error(1)
}

func (m *MockReader) Reconcile(ctx context.Context, stockID int) (*models.StockReconciliation, error) {
	args := m.Called(stockID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockReconciliation), args.Error(1)
}

func SetupTestRouter(role string, h *StockHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/", func(c *gin.Context) {
		c.Set("userID", "1")
		c.Set("role", role)
	})
	h.RegisterRoutes(group)
	return router
}

func perform(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdjustStock_Success(t *testing.T) {
	service := new(MockService)
	reader := new(MockReader)
	router := SetupTestRouter("pharmacist", NewStockHandler(service, reader))

	service.On("AdjustStock", ledger.AdjustmentRequest{
		StockID:          12,
		NewTotalQuantity: 90,
		Reason:           "นับสต็อก",
		ActorID:          1,
	}).Return(&ledger.AdjustmentResult{
		Stock:       models.Stock{ID: 12, TotalQuantity: 90, MinimumStock: 20},
		Transaction: models.StockTransaction{ID: 77, Kind: metadata.KindAdjustDecrease, Quantity: 10},
		TransactionInfo: ledger.TransactionInfo{
			Kind:            metadata.KindAdjustDecrease,
			QuantityChanged: true,
			Reason:          "นับสต็อก",
		},
	}, nil).Once()
	reader.On("Snapshot", 12).Return(&models.StockSnapshot{StockID: 12, MinimumStock: 20, TotalQuantity: 90}, nil).Once()

	w := perform(router, http.MethodPatch, "/stocks/12", map[string]interface{}{
		"total_quantity": 90,
		"reason":         "นับสต็อก",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var response AdjustStockResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 90, response.Stock.TotalQuantity)
	assert.Equal(t, metadata.KindAdjustDecrease, response.TransactionInfo.Kind)
	assert.True(t, response.TransactionInfo.QuantityChanged)
	service.AssertExpectations(t)
	reader.AssertExpectations(t)
}

func TestAdjustStock_Errors(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		body         map[string]interface{}
		serviceErr   error
		expectedCode int
		expectedErr  string
	}{
		{"staff is forbidden", "staff", map[string]interface{}{"total_quantity": 1, "minimum_stock": 0}, nil, http.StatusForbidden, ""},
		{"total is required", "pharmacist", map[string]interface{}{"minimum_stock": 0}, nil, http.StatusBadRequest, "validation_error"},
		{"stale version", "pharmacist", map[string]interface{}{"total_quantity": 1, "minimum_stock": 0, "version": 3}, custom_error.NewConflictError("stock", 12), http.StatusConflict, "conflict"},
		{"unknown stock", "pharmacist", map[string]interface{}{"total_quantity": 1, "minimum_stock": 0}, custom_error.NewNotFoundError("stock", 12), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			reader := new(MockReader)
			router := SetupTestRouter(tt.role, NewStockHandler(service, reader))
			if tt.serviceErr != nil {
				service.On("AdjustStock", mock.Anything).Return(nil, tt.serviceErr).Once()
			}

			w := perform(router, http.MethodPatch, "/stocks/12", tt.body)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedErr != "" {
				var response map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, tt.expectedErr, response["code"])
			}
			service.AssertExpectations(t)
		})
	}
}

func TestDispenseHandler(t *testing.T) {
	service := new(MockService)
	router := SetupTestRouter("staff", NewStockHandler(service, new(MockReader)))
	service.On("Dispense", DispenseRequest{StockID: 4, Quantity: 3, Reference: "HN-1", ActorID: 1}).
		Return(&DispenseResult{Requested: 3, Dispensed: 3}, nil).Once()

	w := perform(router, http.MethodPost, "/stocks/4/dispense", map[string]interface{}{"quantity": 3, "reference": "HN-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestGetTransactions(t *testing.T) {
	reader := new(MockReader)
	router := SetupTestRouter("staff", NewStockHandler(new(MockService), reader))

	reader.On("History", mock.MatchedBy(func(f models.TransactionFilter) bool {
		return f.StockID == 4 &&
			len(f.Kinds) == 2 && f.Kinds[0] == metadata.KindReceive && f.Kinds[1] == metadata.KindTransferIn &&
			f.From != nil && f.From.Format("2006-01-02") == "2025-01-01" &&
			f.To == nil && f.Limit == 50
	})).Return(&models.TransactionPage{Items: []models.StockTransaction{}, Total: 0, Limit: 50}, nil).Once()

	w := perform(router, http.MethodGet, "/stocks/4/transactions?kind=RECEIVE&kind=TRANSFER_IN&from=2025-01-01", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(router, http.MethodGet, "/stocks/4/transactions?kind=STOLEN", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodGet, "/stocks/4/transactions?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reader.AssertExpectations(t)
}

func TestGetStocks(t *testing.T) {
	reader := new(MockReader)
	router := SetupTestRouter("staff", NewStockHandler(new(MockService), reader))
	department := 3
	reader.On("Snapshots", models.StockFilter{DepartmentID: &department, LowStock: true}).
		Return([]models.StockSnapshot{{StockID: 1, LowStock: true}}, nil).Once()

	w := perform(router, http.MethodGet, "/stocks?department_id=3&low_stock=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var snapshots []models.StockSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshots))
	assert.Len(t, snapshots, 1)
	reader.AssertExpectations(t)
}

// staleReader serves snapshots as they were when first cached.
type staleReader struct {
	MockReader
	cached models.StockSnapshot
}

func (r *staleReader) Snapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error) {
	snapshot := r.cached
	return &snapshot, nil
}

func TestAdjustStock_OmittedMinimumKeepsCommittedValue(t *testing.T) {
	f := newServiceFixture()
	stock := f.store.SeedStock(f.drug, f.ward, 10, inventorytest.Lot{Number: "A", Expiry: "2026-01-31", Quantity: 100})
	reader := &staleReader{cached: models.StockSnapshot{StockID: stock.ID, TotalQuantity: 100, MinimumStock: 10, Version: stock.Version}}
	router := SetupTestRouter("pharmacist", NewStockHandler(f.service, reader))

	raised := 20
	_, err := f.ledger.RecordAdjustment(context.Background(), ledger.AdjustmentRequest{
		StockID:          stock.ID,
		NewTotalQuantity: 100,
		NewMinimumStock:  &raised,
		ActorID:          2,
	})
	require.NoError(t, err)

	w := perform(router, http.MethodPatch, fmt.Sprintf("/stocks/%d", stock.ID), map[string]interface{}{"total_quantity": 90})

	require.Equal(t, http.StatusOK, w.Code)
	current := f.store.Stock(stock.ID)
	assert.Equal(t, 90, current.TotalQuantity)
	assert.Equal(t, 20, current.MinimumStock)

	entries := f.store.Entries(stock.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, metadata.KindAdjustDecrease, last.Kind)
	assert.Equal(t, 10, last.Quantity)
	assert.Nil(t, last.BeforeMinimumStock)
	assert.Nil(t, last.AfterMinimumStock)
}
