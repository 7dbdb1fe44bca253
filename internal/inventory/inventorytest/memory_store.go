// Package inventorytest holds an in-memory implementation of every inventory store, used to
// run the services without PostgreSQL.
package inventorytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
)

// Store keeps all inventory tables in maps. A unit of work holds the store lock for its whole
// duration and restores the previous state when it fails, so transactions are serializable.
type Store struct {
	mu    sync.Mutex
	data  state
	fails map[string]error
	Now   func() time.Time
}

type state struct {
	seq         int
	departments map[int]models.Department
	drugs       map[int]models.Drug
	stocks      map[int]models.Stock
	entries     []models.StockTransaction
	batches     map[int]models.DrugBatch
	transfers   map[int]models.Transfer
	items       map[int]models.TransferItem
	allocations []models.TransferItemAllocation
	audit       []models.AuditLog
}

func (s state) clone() state {
	c := s
	c.departments = cloneMap(s.departments)
	c.drugs = cloneMap(s.drugs)
	c.stocks = cloneMap(s.stocks)
	c.batches = cloneMap(s.batches)
	c.transfers = cloneMap(s.transfers)
	c.items = cloneMap(s.items)
	c.entries = append([]models.StockTransaction(nil), s.entries...)
	c.allocations = append([]models.TransferItemAllocation(nil), s.allocations...)
	c.audit = append([]models.AuditLog(nil), s.audit...)
	return c
}

func cloneMap[V any](m map[int]V) map[int]V {
	c := make(map[int]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func NewStore() *Store {
	return &Store{
		data: state{
			departments: map[int]models.Department{},
			drugs:       map[int]models.Drug{},
			stocks:      map[int]models.Stock{},
			batches:     map[int]models.DrugBatch{},
			transfers:   map[int]models.Transfer{},
			items:       map[int]models.TransferItem{},
		},
		fails: map[string]error{},
		Now:   time.Now,
	}
}

var openTx = new(goqu.TxDatabase)

func (s *Store) WithTransaction(ctx context.Context, fn func(tx *goqu.TxDatabase) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = saved
			panic(p)
		}
		if err != nil {
			s.data = saved
		}
	}()

	return fn(openTx)
}

func (s *Store) lock(tx *goqu.TxDatabase) func() {
	if tx != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// FailOn makes the next call of the named method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) failure(method string) error {
	err := s.fails[method]
	delete(s.fails, method)
	return err
}

func (s *Store) nextID() int {
	s.data.seq++
	return s.data.seq
}

func (s *Store) AddDepartment(code, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.data.departments[id] = models.Department{ID: id, Code: code, Name: name}
	return id
}

func (s *Store) AddDrug(code, name, unitPrice string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.data.drugs[id] = models.Drug{
		ID:        id,
		Code:      code,
		Name:      name,
		Unit:      "tab",
		UnitPrice: decimal.RequireFromString(unitPrice),
		UpdatedAt: s.Now(),
	}
	return id
}

// Lot describes a batch to seed. Expiry is a YYYY-MM-DD date or empty for no expiry.
type Lot struct {
	Number   string
	Expiry   string
	Quantity int
}

func Date(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return &t
}

// SeedStock creates a stock holding the given lots. Each lot is booked with a RECEIVE entry
// so the ledger replays to the seeded total.
func (s *Store) SeedStock(drugID, departmentID, minimumStock int, lots ...Lot) models.Stock {
	s.mu.Lock()
	defer s.mu.Unlock()

	drug := s.data.drugs[drugID]
	now := s.Now()
	stock := models.Stock{
		ID:           s.nextID(),
		DrugID:       drugID,
		DepartmentID: departmentID,
		MinimumStock: minimumStock,
		UnitCost:     drug.UnitPrice,
		LastUpdated:  now,
	}
	for i, lot := range lots {
		received := now.Add(time.Duration(i-len(lots)) * time.Minute)
		id := s.nextID()
		s.data.batches[id] = models.DrugBatch{
			ID:                id,
			DrugID:            drugID,
			DepartmentID:      departmentID,
			LotNumber:         lot.Number,
			ExpiryDate:        Date(lot.Expiry),
			Manufacturer:      "GPO",
			RemainingQuantity: lot.Quantity,
			UnitCost:          drug.UnitPrice,
			ReceivedAt:        received,
		}
		s.data.entries = append(s.data.entries, models.StockTransaction{
			ID:             int64(s.nextID()),
			StockID:        stock.ID,
			Kind:           metadata.KindReceive,
			Quantity:       lot.Quantity,
			BeforeQuantity: stock.TotalQuantity,
			AfterQuantity:  stock.TotalQuantity + lot.Quantity,
			UnitCost:       drug.UnitPrice,
			TotalCost:      drug.UnitPrice.Mul(decimal.NewFromInt(int64(lot.Quantity))).Round(2),
			Reference:      lot.Number,
			CreatedAt:      received,
		})
		stock.TotalQuantity += lot.Quantity
	}
	stock.Revalue()
	s.data.stocks[stock.ID] = stock
	return stock
}

func (s *Store) Stock(stockID int) models.Stock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.stocks[stockID]
}

func (s *Store) StockOf(drugID, departmentID int) (models.Stock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stock := range s.data.stocks {
		if stock.DrugID == drugID && stock.DepartmentID == departmentID {
			return stock, true
		}
	}
	return models.Stock{}, false
}

func (s *Store) Entries(stockID int) []models.StockTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entriesOf(stockID)
}

func (s *Store) entriesOf(stockID int) []models.StockTransaction {
	entries := []models.StockTransaction{}
	for _, entry := range s.data.entries {
		if entry.StockID == stockID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.entries)
}

func (s *Store) BatchTotal(drugID, departmentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, batch := range s.data.batches {
		if batch.DrugID == drugID && batch.DepartmentID == departmentID {
			total += batch.RemainingQuantity
		}
	}
	return total
}

func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.data.audit...)
}

func (s *Store) LoadStock(ctx context.Context, tx *goqu.TxDatabase, stockID int) (*models.Stock, error) {
	defer s.lock(tx)()
	stock, ok := s.data.stocks[stockID]
	if !ok {
		return nil, custom_error.NewNotFoundError("stock", stockID)
	}
	return &stock, nil
}

func (s *Store) FindStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.Stock, error) {
	defer s.lock(tx)()
	return s.findStock(drugID, departmentID), nil
}

func (s *Store) findStock(drugID, departmentID int) *models.Stock {
	for _, stock := range s.data.stocks {
		if stock.DrugID == drugID && stock.DepartmentID == departmentID {
			return &stock
		}
	}
	return nil
}

func (s *Store) EnsureStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int, unitCost decimal.Decimal) (*models.Stock, error) {
	defer s.lock(tx)()
	if err := s.failure("EnsureStock"); err != nil {
		return nil, err
	}
	if stock := s.findStock(drugID, departmentID); stock != nil {
		return stock, nil
	}
	if _, ok := s.data.departments[departmentID]; !ok {
		return nil, custom_error.WrapDBError("failed to create stock", "23503")
	}
	stock := models.Stock{
		ID:           s.nextID(),
		DrugID:       drugID,
		DepartmentID: departmentID,
		UnitCost:     unitCost,
		TotalValue:   decimal.Zero,
		LastUpdated:  s.Now(),
	}
	s.data.stocks[stock.ID] = stock
	return &stock, nil
}

func (s *Store) SaveStock(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock) error {
	defer s.lock(tx)()
	if err := s.failure("SaveStock"); err != nil {
		return err
	}
	stored, ok := s.data.stocks[stock.ID]
	if !ok || stored.Version != stock.Version {
		return custom_error.NewConflictError("stock", stock.ID)
	}
	if stock.TotalQuantity < 0 || stock.ReservedQuantity < 0 || stock.ReservedQuantity > stock.TotalQuantity || stock.MinimumStock < 0 {
		return custom_error.WrapDBError("failed to update stock", "23514")
	}
	stock.Version++
	s.data.stocks[stock.ID] = *stock
	return nil
}

func (s *Store) StocksByDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) ([]models.Stock, error) {
	defer s.lock(tx)()
	var stocks []models.Stock
	for _, stock := range s.data.stocks {
		if stock.DrugID == drugID {
			stocks = append(stocks, stock)
		}
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].ID < stocks[j].ID })
	return stocks, nil
}

func (s *Store) snapshot(stock models.Stock) models.StockSnapshot {
	drug := s.data.drugs[stock.DrugID]
	department := s.data.departments[stock.DepartmentID]
	snapshot := models.StockSnapshot{
		StockID:          stock.ID,
		DrugID:           stock.DrugID,
		DrugCode:         drug.Code,
		DrugName:         drug.Name,
		DrugUnit:         drug.Unit,
		DepartmentID:     stock.DepartmentID,
		DepartmentName:   department.Name,
		TotalQuantity:    stock.TotalQuantity,
		ReservedQuantity: stock.ReservedQuantity,
		MinimumStock:     stock.MinimumStock,
		UnitCost:         stock.UnitCost,
		TotalValue:       stock.TotalValue,
		Version:          stock.Version,
		LastUpdated:      stock.LastUpdated,
	}
	snapshot.Derive()
	return snapshot
}

func (s *Store) GetSnapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error) {
	defer s.lock(nil)()
	stock, ok := s.data.stocks[stockID]
	if !ok {
		return nil, custom_error.NewNotFoundError("stock", stockID)
	}
	snapshot := s.snapshot(stock)
	return &snapshot, nil
}

func (s *Store) ListSnapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error) {
	defer s.lock(nil)()
	snapshots := []models.StockSnapshot{}
	for _, stock := range s.data.stocks {
		if filter.DepartmentID != nil && stock.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.DrugID != nil && stock.DrugID != *filter.DrugID {
			continue
		}
		snapshot := s.snapshot(stock)
		if filter.LowStock && !snapshot.LowStock {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].DepartmentName != snapshots[j].DepartmentName {
			return snapshots[i].DepartmentName < snapshots[j].DepartmentName
		}
		return snapshots[i].DrugName < snapshots[j].DrugName
	})
	return snapshots, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx *goqu.TxDatabase, entry *models.StockTransaction) error {
	defer s.lock(tx)()
	if err := s.failure("AppendTransaction"); err != nil {
		return err
	}
	entry.ID = int64(s.nextID())
	s.data.entries = append(s.data.entries, *entry)
	return nil
}

func (s *Store) StockTransactions(ctx context.Context, stockID int) ([]models.StockTransaction, error) {
	defer s.lock(nil)()
	return s.entriesOf(stockID), nil
}

func (s *Store) ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	defer s.lock(nil)()
	matched := []models.StockTransaction{}
	for _, entry := range s.data.entries {
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := &models.TransactionPage{Items: []models.StockTransaction{}, Total: len(matched), Limit: filter.Limit, Offset: filter.Offset}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Items = append(page.Items, matched[filter.Offset:end]...)
	}
	return page, nil
}

func (s *Store) sortedBatches(match func(models.DrugBatch) bool) []models.DrugBatch {
	batches := []models.DrugBatch{}
	for _, batch := range s.data.batches {
		if match(batch) {
			batches = append(batches, batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ExpiresBefore(&batches[j]) })
	return batches
}

func (s *Store) LockBatches(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) ([]models.DrugBatch, error) {
	defer s.lock(tx)()
	return s.sortedBatches(func(b models.DrugBatch) bool {
		return b.DrugID == drugID && b.DepartmentID == departmentID && b.RemainingQuantity > 0
	}), nil
}

func (s *Store) DecrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error {
	defer s.lock(tx)()
	batch, ok := s.data.batches[batchID]
	if !ok || batch.RemainingQuantity < quantity {
		return custom_error.NewConflictError("batch", batchID)
	}
	batch.RemainingQuantity -= quantity
	s.data.batches[batchID] = batch
	return nil
}

func (s *Store) IncrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error {
	defer s.lock(tx)()
	batch, ok := s.data.batches[batchID]
	if !ok {
		return custom_error.NewConflictError("batch", batchID)
	}
	batch.RemainingQuantity += quantity
	s.data.batches[batchID] = batch
	return nil
}

func (s *Store) LatestBatch(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.DrugBatch, error) {
	defer s.lock(tx)()
	var latest *models.DrugBatch
	for _, batch := range s.data.batches {
		if batch.DrugID != drugID || batch.DepartmentID != departmentID {
			continue
		}
		if latest == nil || batch.ReceivedAt.After(latest.ReceivedAt) ||
			(batch.ReceivedAt.Equal(latest.ReceivedAt) && batch.ID > latest.ID) {
			b := batch
			latest = &b
		}
	}
	return latest, nil
}

func (s *Store) UpsertBatch(ctx context.Context, tx *goqu.TxDatabase, batch *models.DrugBatch) error {
	defer s.lock(tx)()
	for id, existing := range s.data.batches {
		if existing.DrugID == batch.DrugID && existing.DepartmentID == batch.DepartmentID && existing.LotNumber == batch.LotNumber {
			if !sameDay(existing.ExpiryDate, batch.ExpiryDate) {
				return custom_error.NewValidationError("expiry_date", "lot %s is already stocked with a different expiry date", batch.LotNumber)
			}
			existing.RemainingQuantity += batch.RemainingQuantity
			s.data.batches[id] = existing
			*batch = existing
			return nil
		}
	}
	batch.ID = s.nextID()
	s.data.batches[batch.ID] = *batch
	return nil
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

func (s *Store) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.DrugBatch, error) {
	defer s.lock(nil)()
	return s.sortedBatches(filter.Matches), nil
}

func (s *Store) GetDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) (*models.Drug, error) {
	defer s.lock(tx)()
	drug, ok := s.data.drugs[drugID]
	if !ok {
		return nil, custom_error.NewNotFoundError("drug", drugID)
	}
	return &drug, nil
}

func (s *Store) ListDrugs(ctx context.Context, search string) ([]models.Drug, error) {
	defer s.lock(nil)()
	drugs := []models.Drug{}
	search = strings.ToLower(search)
	for _, drug := range s.data.drugs {
		if search == "" || strings.Contains(strings.ToLower(drug.Code), search) || strings.Contains(strings.ToLower(drug.Name), search) {
			drugs = append(drugs, drug)
		}
	}
	sort.Slice(drugs, func(i, j int) bool { return drugs[i].Code < drugs[j].Code })
	return drugs, nil
}

func (s *Store) UpdateDrugPrice(ctx context.Context, tx *goqu.TxDatabase, drug *models.Drug) error {
	defer s.lock(tx)()
	stored, ok := s.data.drugs[drug.ID]
	if !ok {
		return custom_error.NewNotFoundError("drug", drug.ID)
	}
	stored.UnitPrice = drug.UnitPrice
	stored.UpdatedAt = drug.UpdatedAt
	s.data.drugs[drug.ID] = stored
	return nil
}

func (s *Store) InsertTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer) error {
	defer s.lock(tx)()
	for _, id := range []int{transfer.FromDepartmentID, transfer.ToDepartmentID} {
		if _, ok := s.data.departments[id]; !ok {
			return custom_error.WrapDBError("failed to insert transfer record", "23503")
		}
	}

	transfer.ID = s.nextID()
	stored := *transfer
	stored.Items = nil
	s.data.transfers[transfer.ID] = stored

	for i := range transfer.Items {
		item := &transfer.Items[i]
		item.ID = s.nextID()
		item.TransferID = transfer.ID
		s.data.items[item.ID] = *item
	}
	return nil
}

func (s *Store) withNames(transfer models.Transfer) models.Transfer {
	transfer.FromDepartmentName = s.data.departments[transfer.FromDepartmentID].Name
	transfer.ToDepartmentName = s.data.departments[transfer.ToDepartmentID].Name
	return transfer
}

func (s *Store) LoadTransfer(ctx context.Context, tx *goqu.TxDatabase, transferID int) (*models.Transfer, error) {
	defer s.lock(tx)()
	stored, ok := s.data.transfers[transferID]
	if !ok {
		return nil, custom_error.NewNotFoundError("transfer", transferID)
	}
	transfer := s.withNames(stored)

	items := []models.TransferItem{}
	for _, item := range s.data.items {
		if item.TransferID == transferID {
			item.Allocations = nil
			for _, allocation := range s.data.allocations {
				if allocation.TransferItemID == item.ID {
					item.Allocations = append(item.Allocations, allocation)
				}
			}
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	transfer.Items = items
	transfer.Summarize()
	return &transfer, nil
}

func (s *Store) ListTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	defer s.lock(nil)()
	transfers := []models.Transfer{}
	for _, transfer := range s.data.transfers {
		if filter.Status != nil && transfer.Status != *filter.Status {
			continue
		}
		if filter.FromDepartmentID != nil && transfer.FromDepartmentID != *filter.FromDepartmentID {
			continue
		}
		if filter.ToDepartmentID != nil && transfer.ToDepartmentID != *filter.ToDepartmentID {
			continue
		}
		transfers = append(transfers, s.withNames(transfer))
	}
	sort.Slice(transfers, func(i, j int) bool {
		if !transfers[i].RequestedAt.Equal(transfers[j].RequestedAt) {
			return transfers[i].RequestedAt.After(transfers[j].RequestedAt)
		}
		return transfers[i].ID > transfers[j].ID
	})

	if filter.Offset >= len(transfers) {
		return []models.Transfer{}, nil
	}
	end := len(transfers)
	if filter.Limit > 0 {
		end = min(filter.Offset+filter.Limit, end)
	}
	return transfers[filter.Offset:end], nil
}

func (s *Store) UpdateTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer, from metadata.TransferStatus) error {
	defer s.lock(tx)()
	if err := s.failure("UpdateTransfer"); err != nil {
		return err
	}
	stored, ok := s.data.transfers[transfer.ID]
	if !ok || stored.Status != from || stored.Version != transfer.Version {
		return custom_error.NewConflictError("transfer", transfer.ID)
	}

	transfer.Version++
	updated := *transfer
	updated.Items = nil
	updated.FromDepartmentName, updated.ToDepartmentName = "", ""
	s.data.transfers[transfer.ID] = updated
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, tx *goqu.TxDatabase, item *models.TransferItem) error {
	defer s.lock(tx)()
	if _, ok := s.data.items[item.ID]; !ok {
		return custom_error.NewConflictError("transfer item", item.ID)
	}
	if !item.QuantitiesOrdered() {
		return custom_error.WrapDBError("failed to update transfer item", "23514")
	}
	stored := *item
	stored.Allocations = nil
	s.data.items[item.ID] = stored
	return nil
}

func (s *Store) InsertAllocations(ctx context.Context, tx *goqu.TxDatabase, itemID int, allocations []models.TransferItemAllocation) error {
	defer s.lock(tx)()
	for i := range allocations {
		allocations[i].ID = s.nextID()
		allocations[i].TransferItemID = itemID
		s.data.allocations = append(s.data.allocations, allocations[i])
	}
	return nil
}

func (s *Store) PersistLog(ctx context.Context, auditLog models.AuditLog, data interface{}) error {
	defer s.lock(nil)()
	if err := s.failure("PersistLog"); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log data: %w", err)
	}
	auditLog.ID = s.nextID()
	auditLog.Payload = raw
	auditLog.CreatedAt = s.Now()
	if err := auditLog.Decode(); err != nil {
		return err
	}
	s.data.audit = append(s.data.audit, auditLog)
	return nil
}

func (s *Store) GetResourceLog(ctx context.Context, id int, resourceType string) ([]models.AuditLog, error) {
	defer s.lock(nil)()
	logs := []models.AuditLog{}
	for i := len(s.data.audit) - 1; i >= 0; i-- {
		if entry := s.data.audit[i]; entry.ResourceID == id && entry.ResourceType == resourceType {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}
