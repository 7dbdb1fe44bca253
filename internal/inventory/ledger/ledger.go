package ledger

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"time"
	"unicode/utf8"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StockStore interface {
	LoadStock(ctx context.Context, tx *goqu.TxDatabase, stockID int) (*models.Stock, error)
	// SaveStock writes the stock only if its version still matches the stored row and
	// bumps stock.Version on success.
	SaveStock(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock) error
}

type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx *goqu.TxDatabase, entry *models.StockTransaction) error
}

type BatchReconciler interface {
	Consume(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int) (int, error)
	Credit(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int, unitCost decimal.Decimal) error
}

type Ledger struct {
	transactor repository.Transactor
	stocks     StockStore
	entries    TransactionStore
	batches    BatchReconciler
	logger     *zap.Logger
	now        func() time.Time
}

func NewLedger(t repository.Transactor, s StockStore, e TransactionStore, b BatchReconciler, logger *zap.Logger) *Ledger {
	return &Ledger{
		transactor: t,
		stocks:     s,
		entries:    e,
		batches:    b,
		logger:     logger,
		now:        time.Now,
	}
}

type AdjustmentRequest struct {
	StockID          int
	DepartmentID     *int
	NewTotalQuantity int
	NewMinimumStock  *int
	Reason           string
	Reference        string
	ActorID          int
	ExpectedVersion  *int
}

type TransactionInfo struct {
	Kind                metadata.TransactionKind `json:"kind"`
	QuantityChanged     bool                     `json:"quantity_changed"`
	MinimumStockChanged bool                     `json:"minimum_stock_changed"`
	Reason              string                   `json:"reason"`
}

type AdjustmentResult struct {
	Stock           models.Stock            `json:"stock"`
	Transaction     models.StockTransaction `json:"transaction"`
	TransactionInfo TransactionInfo         `json:"transaction_info"`
}

// MaxReferenceLength matches the width of stock_transactions.reference.
const MaxReferenceLength = 64

func ValidateReference(reference string) error {
	if n := utf8.RuneCountInString(reference); n > MaxReferenceLength {
		return custom_error.NewValidationError("reference", "must be at most %d characters, got %d", MaxReferenceLength, n)
	}
	return nil
}

func (r AdjustmentRequest) validate() error {
	if r.NewTotalQuantity < 0 {
		return custom_error.NewValidationError("total_quantity", "must not be negative, got %d", r.NewTotalQuantity)
	}
	if r.NewMinimumStock != nil && *r.NewMinimumStock < 0 {
		return custom_error.NewValidationError("minimum_stock", "must not be negative, got %d", *r.NewMinimumStock)
	}
	return ValidateReference(r.Reference)
}

// RecordAdjustment sets a stock to absolute targets in its own unit of work. Conflicts
// are returned to the caller, never retried.
func (l *Ledger) RecordAdjustment(ctx context.Context, req AdjustmentRequest) (*AdjustmentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var result *AdjustmentResult
	err := l.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
		stock, err := l.stocks.LoadStock(ctx, tx, req.StockID)
		if err != nil {
			return err
		}
		if req.DepartmentID != nil && *req.DepartmentID != stock.DepartmentID {
			return custom_error.NewValidationError("department_id", "stock %d belongs to department %d, not %d", stock.ID, stock.DepartmentID, *req.DepartmentID)
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != stock.Version {
			return custom_error.NewConflictError("stock", stock.ID)
		}

		result, err = l.Adjust(ctx, tx, stock, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Stock adjusted",
		zap.Int("stock_id", result.Stock.ID),
		zap.String("kind", string(result.TransactionInfo.Kind)),
		zap.Int("before", result.Transaction.BeforeQuantity),
		zap.Int("after", result.Transaction.AfterQuantity),
	)

	return result, nil
}

// Adjust applies an adjustment to a stock already loaded inside tx. A nil minimum keeps
// the minimum read in tx.
func (l *Ledger) Adjust(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, req AdjustmentRequest) (*AdjustmentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.NewTotalQuantity < stock.ReservedQuantity {
		return nil, custom_error.NewValidationError("total_quantity", "%d units are reserved for transfers, total cannot drop to %d", stock.ReservedQuantity, req.NewTotalQuantity)
	}

	minimum := stock.MinimumStock
	if req.NewMinimumStock != nil {
		minimum = *req.NewMinimumStock
	}

	c := Classify(stock.TotalQuantity, req.NewTotalQuantity, stock.MinimumStock, minimum)
	reason := c.Reason(req.Reason)

	switch c.Kind {
	case metadata.KindAdjustDecrease:
		consumed, err := l.batches.Consume(ctx, tx, stock.DrugID, stock.DepartmentID, c.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to consume batches for stock %d: %w", stock.ID, err)
		}
		if consumed != c.Quantity {
			return nil, fmt.Errorf("batches of stock %d hold %d units, %d needed", stock.ID, consumed, c.Quantity)
		}
	case metadata.KindAdjustIncrease:
		if err := l.batches.Credit(ctx, tx, stock.DrugID, stock.DepartmentID, c.Quantity, stock.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to credit batches for stock %d: %w", stock.ID, err)
		}
	case metadata.KindMinStockIncrease, metadata.KindMinStockDecrease, metadata.KindDataUpdate:
	default:
		return nil, fmt.Errorf("unhandled adjustment kind %s", c.Kind)
	}

	entry := models.StockTransaction{
		StockID:        stock.ID,
		UserID:         req.ActorID,
		Kind:           c.Kind,
		Quantity:       c.Quantity,
		BeforeQuantity: stock.TotalQuantity,
		AfterQuantity:  req.NewTotalQuantity,
		UnitCost:       stock.UnitCost,
		TotalCost:      totalCost(stock.UnitCost, c.Kind.SignedDelta(c.Quantity)),
		Reference:      req.Reference,
		Note:           reason,
	}
	if c.MinimumStockChanged {
		before, after := stock.MinimumStock, minimum
		entry.BeforeMinimumStock = &before
		entry.AfterMinimumStock = &after
	}

	stock.TotalQuantity = req.NewTotalQuantity
	stock.MinimumStock = minimum
	if err := l.save(ctx, tx, stock, &entry); err != nil {
		return nil, err
	}

	return &AdjustmentResult{
		Stock:       *stock,
		Transaction: entry,
		TransactionInfo: TransactionInfo{
			Kind:                c.Kind,
			QuantityChanged:     c.QuantityChanged,
			MinimumStockChanged: c.MinimumStockChanged,
			Reason:              reason,
		},
	}, nil
}

type Movement struct {
	Kind            metadata.TransactionKind
	Quantity        int
	ReservedRelease int
	UnitCost        *decimal.Decimal
	ActorID         int
	Reference       string
	Note            string
}

func (l *Ledger) Post(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, m Movement) (*models.StockTransaction, error) {
	switch m.Kind {
	case metadata.KindReceive, metadata.KindDispense, metadata.KindTransferOut, metadata.KindTransferIn:
	case metadata.KindAdjustIncrease, metadata.KindAdjustDecrease, metadata.KindMinStockIncrease, metadata.KindMinStockDecrease, metadata.KindDataUpdate:
		return nil, fmt.Errorf("%s entries are derived by adjustments, not posted", m.Kind)
	default:
		return nil, fmt.Errorf("unhandled transaction kind %s", m.Kind)
	}
	if m.Quantity <= 0 {
		return nil, custom_error.NewValidationError("quantity", "must be positive, got %d", m.Quantity)
	}

	delta := m.Kind.SignedDelta(m.Quantity)
	after := stock.TotalQuantity + delta
	if after < 0 {
		return nil, custom_error.NewValidationError("quantity", "stock %d holds %d units, cannot remove %d", stock.ID, stock.TotalQuantity, m.Quantity)
	}
	reserved := stock.ReservedQuantity - m.ReservedRelease
	if reserved < 0 {
		reserved = 0
	}
	if reserved > after {
		return nil, custom_error.NewValidationError("quantity", "stock %d would hold %d units with %d reserved", stock.ID, after, reserved)
	}

	unitCost := stock.UnitCost
	if m.UnitCost != nil {
		unitCost = *m.UnitCost
		if stock.UnitCost.IsZero() {
			stock.UnitCost = unitCost
		}
	}

	entry := models.StockTransaction{
		StockID:        stock.ID,
		UserID:         m.ActorID,
		Kind:           m.Kind,
		Quantity:       m.Quantity,
		BeforeQuantity: stock.TotalQuantity,
		AfterQuantity:  after,
		UnitCost:       unitCost,
		TotalCost:      totalCost(unitCost, delta),
		Reference:      m.Reference,
		Note:           m.Note,
	}
	if entry.Note == "" {
		entry.Note = m.Kind.DefaultReason()
	}

	stock.TotalQuantity = after
	stock.ReservedQuantity = reserved
	if err := l.save(ctx, tx, stock, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (l *Ledger) Reserve(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if quantity > stock.AvailableQuantity() {
		return custom_error.NewValidationError("quantity", "stock %d has %d units available, cannot reserve %d", stock.ID, stock.AvailableQuantity(), quantity)
	}
	stock.ReservedQuantity += quantity
	stock.LastUpdated = l.now()
	return l.stocks.SaveStock(ctx, tx, stock)
}

// Release returns held units; releasing more than is reserved clears the reservation.
func (l *Ledger) Release(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, quantity int) error {
	if quantity <= 0 || stock.ReservedQuantity == 0 {
		return nil
	}
	if quantity > stock.ReservedQuantity {
		quantity = stock.ReservedQuantity
	}
	stock.ReservedQuantity -= quantity
	stock.LastUpdated = l.now()
	return l.stocks.SaveStock(ctx, tx, stock)
}

// Restamp re-values a stock at a new unit cost and records a zero-quantity DATA_UPDATE.
func (l *Ledger) Restamp(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, unitCost decimal.Decimal, actorID int, reference string) (*models.StockTransaction, error) {
	if unitCost.IsNegative() {
		return nil, custom_error.NewValidationError("unit_price", "must not be negative")
	}

	entry := models.StockTransaction{
		StockID:        stock.ID,
		UserID:         actorID,
		Kind:           metadata.KindDataUpdate,
		Quantity:       0,
		BeforeQuantity: stock.TotalQuantity,
		AfterQuantity:  stock.TotalQuantity,
		UnitCost:       unitCost,
		TotalCost:      decimal.Zero,
		Reference:      reference,
		Note:           metadata.KindDataUpdate.DefaultReason(),
	}

	stock.UnitCost = unitCost
	if err := l.save(ctx, tx, stock, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (l *Ledger) save(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, entry *models.StockTransaction) error {
	now := l.now()
	stock.Revalue()
	stock.LastUpdated = now
	entry.CreatedAt = now

	if err := l.stocks.SaveStock(ctx, tx, stock); err != nil {
		return err
	}
	if err := l.entries.AppendTransaction(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to append %s entry for stock %d: %w", entry.Kind, stock.ID, err)
	}
	return nil
}

// Replay rebuilds a stock total from its entries in creation order and fails on the first
// entry whose before/after pair does not chain.
func Replay(entries []models.StockTransaction) (int, error) {
	total := 0
	for _, entry := range entries {
		if entry.BeforeQuantity != total {
			return total, fmt.Errorf("entry %d starts at %d, ledger is at %d", entry.ID, entry.BeforeQuantity, total)
		}
		total += entry.AppliedDelta()
		if entry.AfterQuantity != total {
			return total, fmt.Errorf("entry %d ends at %d, %s of %d gives %d", entry.ID, entry.AfterQuantity, entry.Kind, entry.Quantity, total)
		}
	}
	return total, nil
}

func totalCost(unitCost decimal.Decimal, delta int) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(delta)).Abs()).Round(2)
}
