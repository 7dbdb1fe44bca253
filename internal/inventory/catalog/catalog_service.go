package catalog

import (
	"context"
	"fmt"
	"substock/internal/cache"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	GetDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) (*models.Drug, error)
	ListDrugs(ctx context.Context, search string) ([]models.Drug, error)
	UpdateDrugPrice(ctx context.Context, tx *goqu.TxDatabase, drug *models.Drug) error
}

type StockLister interface {
	StocksByDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) ([]models.Stock, error)
}

type Restamper interface {
	Restamp(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, unitCost decimal.Decimal, actorID int, reference string) (*models.StockTransaction, error)
}

type CatalogService struct {
	transactor repository.Transactor
	drugs      Store
	stocks     StockLister
	ledger     Restamper
	cache      cache.Invalidator
	log        *inventorylog.InventoryLog
	logger     *zap.Logger
	now        func() time.Time
}

func NewCatalogService(t repository.Transactor, d Store, s StockLister, l Restamper, c cache.Invalidator, il *inventorylog.InventoryLog, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		transactor: t,
		drugs:      d,
		stocks:     s,
		ledger:     l,
		cache:      c,
		log:        il,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *CatalogService) GetDrug(ctx context.Context, drugID int) (*models.Drug, error) {
	return s.drugs.GetDrug(ctx, nil, drugID)
}

func (s *CatalogService) ListDrugs(ctx context.Context, search string) ([]models.Drug, error) {
	return s.drugs.ListDrugs(ctx, search)
}

type PriceUpdateRequest struct {
	DrugID    int
	UnitPrice decimal.Decimal
	ActorID   int
}

// UpdatePrice changes a drug's unit price and re-values every stock of that drug in the
// same unit of work. Quantities never move; each stock gets a DATA_UPDATE entry.
func (s *CatalogService) UpdatePrice(ctx context.Context, req PriceUpdateRequest) (*models.PriceUpdate, error) {
	if req.UnitPrice.IsNegative() {
		return nil, custom_error.NewValidationError("unit_price", "must not be negative")
	}

	var update models.PriceUpdate
	var stockIDs []int
	err := s.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
		drug, err := s.drugs.GetDrug(ctx, tx, req.DrugID)
		if err != nil {
			return err
		}
		update = models.PriceUpdate{PreviousPrice: drug.UnitPrice}
		stockIDs = stockIDs[:0]

		drug.UnitPrice = req.UnitPrice
		drug.UpdatedAt = s.now()
		if err := s.drugs.UpdateDrugPrice(ctx, tx, drug); err != nil {
			return err
		}

		stocks, err := s.stocks.StocksByDrug(ctx, tx, drug.ID)
		if err != nil {
			return err
		}
		reference := fmt.Sprintf("PRICE-%d", drug.ID)
		for i := range stocks {
			entry, err := s.ledger.Restamp(ctx, tx, &stocks[i], req.UnitPrice, req.ActorID, reference)
			if err != nil {
				return err
			}
			update.Transactions = append(update.Transactions, *entry)
			stockIDs = append(stockIDs, stocks[i].ID)
		}

		update.Drug = *drug
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, stockIDs...)
	s.log.CreatePriceUpdateLogEntry(ctx, &update, req.ActorID)
	s.logger.Info("Drug price updated",
		zap.Int("drug_id", update.Drug.ID),
		zap.String("previous_price", update.PreviousPrice.StringFixed(2)),
		zap.String("unit_price", update.Drug.UnitPrice.StringFixed(2)),
		zap.Int("stocks", len(stockIDs)),
	)

	return &update, nil
}
