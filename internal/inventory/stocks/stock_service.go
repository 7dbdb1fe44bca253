package stocks

import (
	"context"
	"fmt"
	"substock/internal/cache"
	"substock/internal/inventory/batches"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/inventory/ledger"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

type Adjuster interface {
	RecordAdjustment(ctx context.Context, req ledger.AdjustmentRequest) (*ledger.AdjustmentResult, error)
	Post(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, m ledger.Movement) (*models.StockTransaction, error)
}

type Allocator interface {
	Allocate(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int) (*batches.Allocation, error)
}

type StockService struct {
	transactor repository.Transactor
	stocks     ledger.StockStore
	ledger     Adjuster
	allocator  Allocator
	cache      cache.Invalidator
	log        *inventorylog.InventoryLog
	logger     *zap.Logger
	retries    int
}

func NewStockService(t repository.Transactor, s ledger.StockStore, l Adjuster, a Allocator, c cache.Invalidator, il *inventorylog.InventoryLog, logger *zap.Logger, retries int) *StockService {
	return &StockService{
		transactor: t,
		stocks:     s,
		ledger:     l,
		allocator:  a,
		cache:      c,
		log:        il,
		logger:     logger,
		retries:    retries,
	}
}

func (s *StockService) AdjustStock(ctx context.Context, req ledger.AdjustmentRequest) (*ledger.AdjustmentResult, error) {
	result, err := s.ledger.RecordAdjustment(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, result.Stock.ID)
	s.log.CreateStockMovementLogEntry(ctx, "adjust", &result.Stock, &result.Transaction)

	return result, nil
}

type DispenseRequest struct {
	StockID      int    `json:"-"`
	DepartmentID *int   `json:"department_id"`
	Quantity     int    `json:"quantity" binding:"required"`
	Reference    string `json:"reference"`
	Note         string `json:"note"`
	ActorID      int    `json:"-"`
}

type DispenseResult struct {
	Stock       models.Stock             `json:"stock"`
	Transaction *models.StockTransaction `json:"transaction,omitempty"`
	Allocation  batches.Allocation       `json:"allocation"`
	Requested   int                      `json:"requested"`
	Dispensed   int                      `json:"dispensed"`
	Unsatisfied int                      `json:"unsatisfied"`
}

// Dispense issues units to patients FIFO by expiry. Only available units are issued; a
// shortfall is reported in the result and the entry note, not as an error.
func (s *StockService) Dispense(ctx context.Context, req DispenseRequest) (*DispenseResult, error) {
	if req.Quantity <= 0 {
		return nil, custom_error.NewValidationError("quantity", "must be positive, got %d", req.Quantity)
	}
	if err := ledger.ValidateReference(req.Reference); err != nil {
		return nil, err
	}

	var result *DispenseResult
	err := repository.RetryOnConflict(ctx, s.retries, func() error {
		return s.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
			stock, err := s.stocks.LoadStock(ctx, tx, req.StockID)
			if err != nil {
				return err
			}
			if req.DepartmentID != nil && *req.DepartmentID != stock.DepartmentID {
				return custom_error.NewValidationError("department_id", "stock %d belongs to department %d, not %d", stock.ID, stock.DepartmentID, *req.DepartmentID)
			}

			limit := req.Quantity
			if available := stock.AvailableQuantity(); limit > available {
				limit = available
			}
			allocation, err := s.allocator.Allocate(ctx, tx, stock.DrugID, stock.DepartmentID, limit)
			if err != nil {
				return err
			}

			result = &DispenseResult{
				Allocation:  *allocation,
				Requested:   req.Quantity,
				Dispensed:   allocation.Allocated,
				Unsatisfied: req.Quantity - allocation.Allocated,
			}
			if allocation.Allocated > 0 {
				note := req.Note
				if result.Unsatisfied > 0 {
					note = joinNotes(note, fmt.Sprintf("จ่ายไม่ครบ: ขอ %d จ่ายได้ %d ขาด %d", req.Quantity, allocation.Allocated, result.Unsatisfied))
				}
				result.Transaction, err = s.ledger.Post(ctx, tx, stock, ledger.Movement{
					Kind:      metadata.KindDispense,
					Quantity:  allocation.Allocated,
					ActorID:   req.ActorID,
					Reference: req.Reference,
					Note:      note,
				})
				if err != nil {
					return err
				}
			}
			result.Stock = *stock
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, result.Stock.ID)
	if result.Transaction != nil {
		s.log.CreateStockMovementLogEntry(ctx, "dispense", &result.Stock, result.Transaction)
	}
	s.logger.Info("Stock dispensed",
		zap.Int("stock_id", result.Stock.ID),
		zap.Int("requested", result.Requested),
		zap.Int("dispensed", result.Dispensed),
	)

	return result, nil
}

func joinNotes(notes ...string) string {
	joined := ""
	for _, note := range notes {
		if note == "" {
			continue
		}
		if joined != "" {
			joined += "; "
		}
		joined += note
	}
	return joined
}
