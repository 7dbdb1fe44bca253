package batches

import (
	"context"
	"strings"
	"substock/internal/cache"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/inventory/ledger"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StockProvider interface {
	// EnsureStock returns the stock of a drug in a department, creating an empty one on
	// first receipt.
	EnsureStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int, unitCost decimal.Decimal) (*models.Stock, error)
}

type DrugReader interface {
	GetDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) (*models.Drug, error)
}

type Poster interface {
	Post(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, m ledger.Movement) (*models.StockTransaction, error)
}

type ReceiptService struct {
	transactor repository.Transactor
	stocks     StockProvider
	drugs      DrugReader
	store      Store
	ledger     Poster
	cache      cache.Invalidator
	log        *inventorylog.InventoryLog
	logger     *zap.Logger
	now        func() time.Time
}

func NewReceiptService(t repository.Transactor, s StockProvider, d DrugReader, b Store, l Poster, c cache.Invalidator, il *inventorylog.InventoryLog, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{
		transactor: t,
		stocks:     s,
		drugs:      d,
		store:      b,
		ledger:     l,
		cache:      c,
		log:        il,
		logger:     logger,
		now:        time.Now,
	}
}

type ReceiptRequest struct {
	DrugID       int              `json:"drug_id" binding:"required"`
	DepartmentID int              `json:"department_id" binding:"required"`
	LotNumber    string           `json:"lot_number" binding:"required"`
	ExpiryDate   *time.Time       `json:"expiry_date" binding:"required"`
	Manufacturer string           `json:"manufacturer"`
	Quantity     int              `json:"quantity" binding:"required"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	Reference    string           `json:"reference"`
	Note         string           `json:"note"`
	ActorID      int              `json:"-"`
}

type Receipt struct {
	Batch       models.DrugBatch        `json:"batch"`
	Stock       models.Stock            `json:"stock"`
	Transaction models.StockTransaction `json:"transaction"`
}

func (r ReceiptRequest) validate() error {
	switch {
	case r.DrugID <= 0:
		return custom_error.NewValidationError("drug_id", "is required")
	case r.DepartmentID <= 0:
		return custom_error.NewValidationError("department_id", "is required")
	case strings.TrimSpace(r.LotNumber) == "":
		return custom_error.NewValidationError("lot_number", "is required")
	case strings.HasPrefix(r.LotNumber, "ADJ-"):
		return custom_error.NewValidationError("lot_number", "prefix ADJ- is reserved for count adjustments")
	case r.ExpiryDate == nil:
		return custom_error.NewValidationError("expiry_date", "is required")
	case r.Quantity <= 0:
		return custom_error.NewValidationError("quantity", "must be positive, got %d", r.Quantity)
	case r.UnitCost != nil && r.UnitCost.IsNegative():
		return custom_error.NewValidationError("unit_cost", "must not be negative")
	}
	return ledger.ValidateReference(r.Reference)
}

// ReceiveBatch tops up an existing lot of the same number. A lot number reused with
// another expiry date is rejected.
func (s *ReceiptService) ReceiveBatch(ctx context.Context, req ReceiptRequest) (*Receipt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var receipt Receipt
	err := s.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
		drug, err := s.drugs.GetDrug(ctx, tx, req.DrugID)
		if err != nil {
			return err
		}
		unitCost := drug.UnitPrice
		if req.UnitCost != nil {
			unitCost = *req.UnitCost
		}

		stock, err := s.stocks.EnsureStock(ctx, tx, req.DrugID, req.DepartmentID, drug.UnitPrice)
		if err != nil {
			return err
		}

		batch := models.DrugBatch{
			DrugID:            req.DrugID,
			DepartmentID:      req.DepartmentID,
			LotNumber:         strings.TrimSpace(req.LotNumber),
			ExpiryDate:        req.ExpiryDate,
			Manufacturer:      req.Manufacturer,
			RemainingQuantity: req.Quantity,
			UnitCost:          unitCost,
			ReceivedAt:        s.now(),
		}
		if err := s.store.UpsertBatch(ctx, tx, &batch); err != nil {
			return err
		}

		entry, err := s.ledger.Post(ctx, tx, stock, ledger.Movement{
			Kind:      metadata.KindReceive,
			Quantity:  req.Quantity,
			UnitCost:  &unitCost,
			ActorID:   req.ActorID,
			Reference: req.Reference,
			Note:      req.Note,
		})
		if err != nil {
			return err
		}

		receipt = Receipt{Batch: batch, Stock: *stock, Transaction: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, receipt.Stock.ID)
	s.log.CreateStockMovementLogEntry(ctx, "receive", &receipt.Stock, &receipt.Transaction)
	s.logger.Info("Batch received",
		zap.Int("stock_id", receipt.Stock.ID),
		zap.String("lot_number", receipt.Batch.LotNumber),
		zap.Int("quantity", req.Quantity),
	)

	return &receipt, nil
}

func (s *ReceiptService) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.DrugBatch, error) {
	return s.store.ListBatches(ctx, filter)
}

func (s *ReceiptService) ExpiringBatches(ctx context.Context, withinDays int, departmentID *int) ([]models.DrugBatch, error) {
	if withinDays < 0 {
		return nil, custom_error.NewValidationError("within_days", "must not be negative, got %d", withinDays)
	}
	before := s.now().AddDate(0, 0, withinDays)
	return s.store.ListBatches(ctx, models.BatchFilter{DepartmentID: departmentID, ExpiringBefore: &before})
}
