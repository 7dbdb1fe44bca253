package ledger

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type TransactionRepository struct {
	repository *repository.Repository
}

func NewTransactionRepository(r *repository.Repository) *TransactionRepository {
	return &TransactionRepository{repository: r}
}

func (r *TransactionRepository) AppendTransaction(ctx context.Context, tx *goqu.TxDatabase, entry *models.StockTransaction) error {
	query := r.repository.Q(tx).Insert("stock_transactions").
		Rows(goqu.Record{
			"stock_id":             entry.StockID,
			"user_id":              entry.UserID,
			"kind":                 entry.Kind,
			"quantity":             entry.Quantity,
			"before_quantity":      entry.BeforeQuantity,
			"after_quantity":       entry.AfterQuantity,
			"before_minimum_stock": entry.BeforeMinimumStock,
			"after_minimum_stock":  entry.AfterMinimumStock,
			"unit_cost":            entry.UnitCost,
			"total_cost":           entry.TotalCost,
			"reference":            entry.Reference,
			"note":                 entry.Note,
			"created_at":           entry.CreatedAt,
		}).
		Returning("id")

	if _, err := query.Executor().ScanValContext(ctx, &entry.ID); err != nil {
		return custom_error.TranslateDBError(err, "failed to insert stock transaction")
	}

	return nil
}

func (r *TransactionRepository) transactionQuery() *goqu.SelectDataset {
	return r.repository.GoquDBWrapper.
		Select(
			"id", "stock_id", "user_id", "kind", "quantity", "before_quantity", "after_quantity",
			"before_minimum_stock", "after_minimum_stock", "unit_cost", "total_cost",
			"reference", "note", "created_at",
		).
		From("stock_transactions")
}

// StockTransactions returns every entry of a stock in creation order.
func (r *TransactionRepository) StockTransactions(ctx context.Context, stockID int) ([]models.StockTransaction, error) {
	var entries []models.StockTransaction
	query := r.transactionQuery().
		Where(goqu.Ex{"stock_id": stockID}).
		Order(goqu.I("id").Asc())

	if err := query.Executor().ScanStructsContext(ctx, &entries); err != nil {
		return nil, fmt.Errorf("unable to select transactions of stock %d: %w", stockID, err)
	}

	return entries, nil
}

func (r *TransactionRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	conditions := []goqu.Expression{goqu.C("stock_id").Eq(filter.StockID)}
	if len(filter.Kinds) > 0 {
		conditions = append(conditions, goqu.C("kind").In(filter.Kinds))
	}
	if filter.From != nil {
		conditions = append(conditions, goqu.C("created_at").Gte(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, goqu.C("created_at").Lt(*filter.To))
	}

	var total int
	countQuery := r.repository.GoquDBWrapper.
		From("stock_transactions").
		Select(goqu.COUNT("id")).
		Where(conditions...)
	if _, err := countQuery.Executor().ScanValContext(ctx, &total); err != nil {
		return nil, fmt.Errorf("unable to count transactions of stock %d: %w", filter.StockID, err)
	}

	page := models.TransactionPage{Items: []models.StockTransaction{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	query := r.transactionQuery().
		Where(conditions...).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Desc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset))

	if err := query.Executor().ScanStructsContext(ctx, &page.Items); err != nil {
		return nil, fmt.Errorf("unable to select transactions of stock %d: %w", filter.StockID, err)
	}

	return &page, nil
}
