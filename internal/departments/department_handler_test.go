package departments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetDepartments(ctx context.Context) ([]models.Department, error) {
	args := m.Called()
	return args.Get(0).([]models.Department), args.Error(1)
}

func (m *MockStore) GetDepartment(ctx context.Context, departmentID int) (*models.Department, error) {
	args := m.Called(departmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Department), args.Error(1)
}

func (m *MockStore) PersistDepartment(ctx context.Context, department *models.Department) error {
	args := m.Called(department)
	return args.Error(0)
}

func (m *MockStore) UpdateDepartment(ctx context.Context, departmentID int, req UpdateDepartmentRequest) (*models.Department, error) {
	args := m.Called(departmentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Department), args.Error(1)
}

type MockStockReader struct {
	mock.Mock
}

func (m *MockStockReader) Snapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error) {
	args := m.Called(filter)
	return args.Get(0).([]models.StockSnapshot), args.Error(1)
}

func setupRouter(role string, h *DepartmentHandler) *gin.Engine {
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

func TestGetDepartments(t *testing.T) {
	store := new(MockStore)
	router := setupRouter("staff", NewDepartmentHandler(store, new(MockStockReader)))
	store.On("GetDepartments").Return([]models.Department{{ID: 1, Code: "PHA", Name: "Central Pharmacy"}}, nil)

	w := perform(router, http.MethodGet, "/departments", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var departments []models.Department
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &departments))
	assert.Equal(t, "PHA", departments[0].Code)
}

func TestGetDepartment_NotFound(t *testing.T) {
	store := new(MockStore)
	router := setupRouter("staff", NewDepartmentHandler(store, new(MockStockReader)))
	store.On("GetDepartment", 9).Return(nil, custom_error.NewNotFoundError("department", 9))

	w := perform(router, http.MethodGet, "/departments/9", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDepartmentStocks(t *testing.T) {
	stocks := new(MockStockReader)
	router := setupRouter("staff", NewDepartmentHandler(new(MockStore), stocks))
	ward := 2
	stocks.On("Snapshots", models.StockFilter{DepartmentID: &ward, LowStock: true}).
		Return([]models.StockSnapshot{{StockID: 5, DepartmentID: 2, LowStock: true}}, nil)

	w := perform(router, http.MethodGet, "/departments/2/stocks?low_stock=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	stocks.AssertExpectations(t)
}

func TestCreateDepartment(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		body      map[string]interface{}
		persisted error
		expected  int
	}{
		{"admin creates", "admin", map[string]interface{}{"code": "ICU", "name": "Intensive Care"}, nil, http.StatusCreated},
		{"duplicate code", "admin", map[string]interface{}{"code": "ICU", "name": "Intensive Care"}, custom_error.WrapDBError("duplicate", "23505"), http.StatusConflict},
		{"missing name", "admin", map[string]interface{}{"code": "ICU"}, nil, http.StatusBadRequest},
		{"pharmacist forbidden", "pharmacist", map[string]interface{}{"code": "ICU", "name": "Intensive Care"}, nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			router := setupRouter(tt.role, NewDepartmentHandler(store, new(MockStockReader)))
			store.On("PersistDepartment", mock.AnythingOfType("*models.Department")).Return(tt.persisted).Maybe()

			w := perform(router, http.MethodPost, "/departments", tt.body)

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestUpdateDepartment(t *testing.T) {
	store := new(MockStore)
	router := setupRouter("admin", NewDepartmentHandler(store, new(MockStockReader)))
	name := "Medicine Ward 5"
	store.On("UpdateDepartment", 3, UpdateDepartmentRequest{Name: &name}).
		Return(&models.Department{ID: 3, Code: "W5", Name: name}, nil)

	w := perform(router, http.MethodPatch, "/departments/3", map[string]interface{}{"name": name})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), name)
	store.AssertExpectations(t)
}
