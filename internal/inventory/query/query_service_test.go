package query

import (
	"context"
	"substock/internal/inventory/inventorytest"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mapCache struct {
	snapshots map[int]models.StockSnapshot
	sets      int
}

func newMapCache() *mapCache {
	return &mapCache{snapshots: map[int]models.StockSnapshot{}}
}

func (c *mapCache) Get(ctx context.Context, stockID int) (*models.StockSnapshot, bool) {
	snapshot, ok := c.snapshots[stockID]
	if !ok {
		return nil, false
	}
	return &snapshot, true
}

func (c *mapCache) Set(ctx context.Context, snapshot models.StockSnapshot) {
	c.sets++
	c.snapshots[snapshot.StockID] = snapshot
}

func (c *mapCache) Invalidate(ctx context.Context, stockIDs ...int) {
	for _, id := range stockIDs {
		delete(c.snapshots, id)
	}
}

// recordingHistory keeps the last filter the service passed down.
type recordingHistory struct {
	*inventorytest.Store
	last models.TransactionFilter
}

func (h *recordingHistory) ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	h.last = filter
	return h.Store.ListTransactions(ctx, filter)
}

type queryFixture struct {
	store   *inventorytest.Store
	history *recordingHistory
	cache   *mapCache
	service *QueryService
	logs    *observer.ObservedLogs
	stock   models.Stock
}

func newQueryFixture() *queryFixture {
	store := inventorytest.NewStore()
	history := &recordingHistory{Store: store}
	c := newMapCache()
	core, logs := observer.New(zapcore.WarnLevel)

	ward := store.AddDepartment("W1", "Ward 1")
	drug := store.AddDrug("PARA500", "Paracetamol 500 mg", "2.00")
	stock := store.SeedStock(drug, ward, 20,
		inventorytest.Lot{Number: "A", Expiry: "2026-01-31", Quantity: 10},
		inventorytest.Lot{Number: "B", Expiry: "2026-06-30", Quantity: 15},
	)

	return &queryFixture{
		store:   store,
		history: history,
		cache:   c,
		service: NewQueryService(store, history, store, store, store, c, zap.New(core)),
		logs:    logs,
		stock:   stock,
	}
}

func TestSnapshot_ReadsThroughCache(t *testing.T) {
	f := newQueryFixture()
	ctx := context.Background()

	first, err := f.service.Snapshot(ctx, f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, first.TotalQuantity)
	assert.Equal(t, "Paracetamol 500 mg", first.DrugName)
	assert.Equal(t, 1, f.cache.sets)

	cached := f.cache.snapshots[f.stock.ID]
	cached.TotalQuantity = 999
	f.cache.snapshots[f.stock.ID] = cached

	second, err := f.service.Snapshot(ctx, f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, 999, second.TotalQuantity, "served from cache")
	assert.Equal(t, 1, f.cache.sets)

	_, err = f.service.Snapshot(ctx, 404)
	assert.ErrorIs(t, err, custom_error.ErrNotFound)
}

func TestSnapshots_LowStockFilter(t *testing.T) {
	f := newQueryFixture()
	other := f.store.AddDrug("AMOX500", "Amoxicillin 500 mg", "3.00")
	f.store.SeedStock(other, f.stock.DepartmentID, 50, inventorytest.Lot{Number: "X", Expiry: "2026-01-31", Quantity: 40})

	all, err := f.service.Snapshots(context.Background(), models.StockFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	low, err := f.service.Snapshots(context.Background(), models.StockFilter{LowStock: true})
	require.NoError(t, err)
	require.Len(t, low, 1, "25 on hand is above the minimum of 20")
	assert.Equal(t, "AMOX500", low[0].DrugCode)
}

func TestHistory(t *testing.T) {
	f := newQueryFixture()
	ctx := context.Background()

	page, err := f.service.History(ctx, models.TransactionFilter{StockID: f.stock.ID})
	require.NoError(t, err)
	assert.Equal(t, 50, f.history.last.Limit)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "B", page.Items[0].Reference, "newest first")

	_, err = f.service.History(ctx, models.TransactionFilter{StockID: f.stock.ID, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, 500, f.history.last.Limit)

	page, err = f.service.History(ctx, models.TransactionFilter{StockID: f.stock.ID, Kinds: []metadata.TransactionKind{metadata.KindDispense}})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestHistory_Rejections(t *testing.T) {
	f := newQueryFixture()
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name     string
		filter   models.TransactionFilter
		expected error
	}{
		{"negative offset", models.TransactionFilter{StockID: f.stock.ID, Offset: -1}, custom_error.ErrValidation},
		{"inverted range", models.TransactionFilter{StockID: f.stock.ID, From: &now, To: &earlier}, custom_error.ErrValidation},
		{"unknown stock", models.TransactionFilter{StockID: 404}, custom_error.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.History(context.Background(), tt.filter)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestReconcile(t *testing.T) {
	f := newQueryFixture()
	ctx := context.Background()

	result, err := f.service.Reconcile(ctx, f.stock.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, 25, result.LedgerTotal)
	assert.Equal(t, 25, result.BatchTotal)
	assert.Equal(t, 2, result.Entries)
	assert.Equal(t, 0, f.logs.Len())

	drifted := f.store.Stock(f.stock.ID)
	drifted.TotalQuantity = 30
	require.NoError(t, f.store.SaveStock(ctx, nil, &drifted))

	result, err = f.service.Reconcile(ctx, f.stock.ID)
	require.NoError(t, err)
	assert.False(t, result.Consistent)
	assert.Equal(t, 30, result.StockTotal)
	assert.Equal(t, 25, result.LedgerTotal)
	require.Equal(t, 1, f.logs.Len())
	assert.Equal(t, "Stock does not reconcile", f.logs.All()[0].Message)
}

func TestTrail(t *testing.T) {
	requester, approver, dispenser, receiver := 1, 2, 3, 4
	requested := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	approved := requested.Add(time.Hour)
	dispensed := approved.Add(time.Hour)
	received := dispensed.Add(time.Hour)

	t.Run("in progress", func(t *testing.T) {
		trail := Trail(&models.Transfer{
			Status:      metadata.StatusApproved,
			RequestedBy: requester,
			RequestedAt: requested,
			Purpose:     "เบิกประจำสัปดาห์",
			ApprovedBy:  &approver,
			ApprovedAt:  &approved,
		})

		require.Len(t, trail, 4)
		assert.Equal(t, metadata.StatusPending, trail[0].Stage)
		assert.Equal(t, "เบิกประจำสัปดาห์", trail[0].Note)
		assert.True(t, trail[1].Reached)
		assert.Equal(t, approver, *trail[1].ActorID)
		assert.False(t, trail[2].Reached)
		assert.Equal(t, metadata.StatusDelivered, trail[3].Stage)
		assert.False(t, trail[3].Reached)
	})

	t.Run("partial", func(t *testing.T) {
		trail := Trail(&models.Transfer{
			Status:      metadata.StatusPartial,
			RequestedAt: requested,
			ApprovedBy:  &approver,
			ApprovedAt:  &approved,
			DispensedBy: &dispenser,
			DispensedAt: &dispensed,
			ReceivedBy:  &receiver,
			ReceivedAt:  &received,
		})

		require.Len(t, trail, 4)
		assert.Equal(t, metadata.StatusPartial, trail[3].Stage)
		assert.Equal(t, received, *trail[3].At)
	})

	t.Run("cancelled after approval", func(t *testing.T) {
		cancelled := approved.Add(time.Minute)
		trail := Trail(&models.Transfer{
			Status:           metadata.StatusCancelled,
			RequestedAt:      requested,
			ApprovedBy:       &approver,
			ApprovedAt:       &approved,
			CancelledBy:      &approver,
			CancelledAt:      &cancelled,
			CancellationNote: "ขอผิดรายการ",
		})

		require.Len(t, trail, 3)
		assert.Equal(t, metadata.StatusCancelled, trail[2].Stage)
		assert.Equal(t, "ขอผิดรายการ", trail[2].Note)
	})

	t.Run("cancelled while pending", func(t *testing.T) {
		cancelled := requested.Add(time.Minute)
		trail := Trail(&models.Transfer{Status: metadata.StatusCancelled, RequestedAt: requested, CancelledAt: &cancelled})

		require.Len(t, trail, 2)
		assert.Equal(t, metadata.StatusCancelled, trail[1].Stage)
	})
}

func TestResourceLog(t *testing.T) {
	f := newQueryFixture()
	ctx := context.Background()
	actor := 5
	require.NoError(t, f.store.PersistLog(ctx, models.AuditLog{ResourceID: f.stock.ID, ResourceType: "stock", Action: "adjust", UserID: &actor}, map[string]interface{}{"msg": "ปรับสต็อก"}))

	logs, err := f.service.ResourceLog(ctx, "stock", f.stock.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ปรับสต็อก", logs[0].Data["msg"])

	logs, err = f.service.ResourceLog(ctx, "transfer", f.stock.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
