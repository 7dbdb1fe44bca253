package stocks

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
)

type StockRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *StockRepository {
	return &StockRepository{repository: r}
}

var stockColumns = []interface{}{
	"id", "drug_id", "department_id", "total_quantity", "reserved_quantity", "minimum_stock",
	"unit_cost", "total_value", "version", "last_updated",
}

func (r *StockRepository) LoadStock(ctx context.Context, tx *goqu.TxDatabase, stockID int) (*models.Stock, error) {
	var stock models.Stock
	query := r.repository.Q(tx).From("stocks").
		Select(stockColumns...).
		Where(goqu.Ex{"id": stockID})

	found, err := query.Executor().ScanStructContext(ctx, &stock)
	if err != nil {
		return nil, fmt.Errorf("unable to select stock %d: %w", stockID, err)
	}
	if !found {
		return nil, custom_error.NewNotFoundError("stock", stockID)
	}

	return &stock, nil
}

// FindStock returns nil when the department never held the drug.
func (r *StockRepository) FindStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.Stock, error) {
	var stock models.Stock
	query := r.repository.Q(tx).From("stocks").
		Select(stockColumns...).
		Where(goqu.Ex{"drug_id": drugID, "department_id": departmentID})

	found, err := query.Executor().ScanStructContext(ctx, &stock)
	if err != nil {
		return nil, fmt.Errorf("unable to select stock of drug %d in department %d: %w", drugID, departmentID, err)
	}
	if !found {
		return nil, nil
	}

	return &stock, nil
}

func (r *StockRepository) EnsureStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int, unitCost decimal.Decimal) (*models.Stock, error) {
	insert := r.repository.Q(tx).Insert("stocks").
		Rows(goqu.Record{
			"drug_id":           drugID,
			"department_id":     departmentID,
			"total_quantity":    0,
			"reserved_quantity": 0,
			"minimum_stock":     0,
			"unit_cost":         unitCost,
			"total_value":       decimal.Zero,
			"version":           0,
			"last_updated":      time.Now(),
		}).
		OnConflict(goqu.DoNothing())

	if _, err := insert.Executor().ExecContext(ctx); err != nil {
		return nil, custom_error.TranslateDBError(err, "failed to create stock")
	}

	stock, err := r.FindStock(ctx, tx, drugID, departmentID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, fmt.Errorf("stock of drug %d in department %d missing after insert", drugID, departmentID)
	}

	return stock, nil
}

func (r *StockRepository) SaveStock(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock) error {
	query := r.repository.Q(tx).Update("stocks").
		Set(goqu.Record{
			"total_quantity":    stock.TotalQuantity,
			"reserved_quantity": stock.ReservedQuantity,
			"minimum_stock":     stock.MinimumStock,
			"unit_cost":         stock.UnitCost,
			"total_value":       stock.TotalValue,
			"last_updated":      stock.LastUpdated,
			"version":           goqu.L("version + 1"),
		}).
		Where(goqu.Ex{
			"id":      stock.ID,
			"version": stock.Version,
		})

	result, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, "failed to update stock")
	}
	if err := repository.RowsAffected(result, "stock", stock.ID); err != nil {
		return err
	}

	stock.Version++
	return nil
}

func (r *StockRepository) StocksByDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) ([]models.Stock, error) {
	var stocks []models.Stock
	query := r.repository.Q(tx).From("stocks").
		Select(stockColumns...).
		Where(goqu.Ex{"drug_id": drugID}).
		Order(goqu.I("id").Asc())

	if err := query.Executor().ScanStructsContext(ctx, &stocks); err != nil {
		return nil, fmt.Errorf("unable to select stocks of drug %d: %w", drugID, err)
	}

	return stocks, nil
}

func (r *StockRepository) snapshotQuery() *goqu.SelectDataset {
	return r.repository.GoquDBWrapper.
		Select(
			goqu.I("s.id").As("stock_id"),
			goqu.I("s.drug_id").As("drug_id"),
			goqu.I("d.code").As("drug_code"),
			goqu.I("d.name").As("drug_name"),
			goqu.I("d.unit").As("drug_unit"),
			goqu.I("s.department_id").As("department_id"),
			goqu.I("dep.name").As("department_name"),
			goqu.I("s.total_quantity").As("total_quantity"),
			goqu.I("s.reserved_quantity").As("reserved_quantity"),
			goqu.I("s.minimum_stock").As("minimum_stock"),
			goqu.I("s.unit_cost").As("unit_cost"),
			goqu.I("s.total_value").As("total_value"),
			goqu.I("s.version").As("version"),
			goqu.I("s.last_updated").As("last_updated"),
		).
		From(goqu.T("stocks").As("s")).
		InnerJoin(
			goqu.T("drugs").As("d"),
			goqu.On(goqu.Ex{"s.drug_id": goqu.I("d.id")}),
		).
		InnerJoin(
			goqu.T("departments").As("dep"),
			goqu.On(goqu.Ex{"s.department_id": goqu.I("dep.id")}),
		)
}

func (r *StockRepository) GetSnapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error) {
	var snapshot models.StockSnapshot
	found, err := r.snapshotQuery().
		Where(goqu.Ex{"s.id": stockID}).
		Executor().ScanStructContext(ctx, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("unable to select stock %d: %w", stockID, err)
	}
	if !found {
		return nil, custom_error.NewNotFoundError("stock", stockID)
	}

	snapshot.Derive()
	return &snapshot, nil
}

func (r *StockRepository) ListSnapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error) {
	aliases := map[string]string{
		"department_id": "s.department_id",
		"drug_id":       "s.drug_id",
	}

	conditions := repository.NewConditions()
	conditions.Add("department_id", filter.DepartmentID)
	conditions.Add("drug_id", filter.DrugID)

	query := r.snapshotQuery()
	if !conditions.Empty() {
		query = query.Where(conditions.Where(aliases))
	}
	if filter.LowStock {
		query = query.Where(
			goqu.I("s.minimum_stock").Gt(0),
			goqu.L("s.total_quantity - s.reserved_quantity < s.minimum_stock"),
		)
	}

	snapshots := []models.StockSnapshot{}
	if err := query.Order(goqu.I("dep.name").Asc(), goqu.I("d.name").Asc()).Executor().ScanStructsContext(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("unable to select stocks: %w", err)
	}
	for i := range snapshots {
		snapshots[i].Derive()
	}

	return snapshots, nil
}
