package batches

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type BatchRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *BatchRepository {
	return &BatchRepository{repository: r}
}

var batchColumns = []interface{}{
	"id", "drug_id", "department_id", "lot_number", "expiry_date", "manufacturer",
	"remaining_quantity", "unit_cost", "received_at",
}

func fifoOrder() []exp.OrderedExpression {
	return []exp.OrderedExpression{
		goqu.I("expiry_date").Asc().NullsLast(),
		goqu.I("received_at").Asc(),
		goqu.I("id").Asc(),
	}
}

func (r *BatchRepository) LockBatches(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) ([]models.DrugBatch, error) {
	var batches []models.DrugBatch
	query := r.repository.Q(tx).From("drug_batches").
		Select(batchColumns...).
		Where(
			goqu.C("drug_id").Eq(drugID),
			goqu.C("department_id").Eq(departmentID),
			goqu.C("remaining_quantity").Gt(0),
		).
		Order(fifoOrder()...).
		ForUpdate(exp.Wait)

	if err := query.Executor().ScanStructsContext(ctx, &batches); err != nil {
		return nil, fmt.Errorf("unable to select batches: %w", err)
	}

	return batches, nil
}

func (r *BatchRepository) DecrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error {
	query := r.repository.Q(tx).Update("drug_batches").
		Set(goqu.Record{
			"remaining_quantity": goqu.L("remaining_quantity - ?", quantity),
		}).
		Where(
			goqu.C("id").Eq(batchID),
			goqu.C("remaining_quantity").Gte(quantity),
		)

	result, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, "failed to decrement batch")
	}

	return repository.RowsAffected(result, "batch", batchID)
}

func (r *BatchRepository) IncrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error {
	query := r.repository.Q(tx).Update("drug_batches").
		Set(goqu.Record{
			"remaining_quantity": goqu.L("remaining_quantity + ?", quantity),
		}).
		Where(goqu.C("id").Eq(batchID))

	result, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, "failed to increment batch")
	}

	return repository.RowsAffected(result, "batch", batchID)
}

func (r *BatchRepository) LatestBatch(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.DrugBatch, error) {
	var batch models.DrugBatch
	query := r.repository.Q(tx).From("drug_batches").
		Select(batchColumns...).
		Where(
			goqu.C("drug_id").Eq(drugID),
			goqu.C("department_id").Eq(departmentID),
		).
		Order(goqu.I("received_at").Desc(), goqu.I("id").Desc()).
		Limit(1).
		ForUpdate(exp.Wait)

	found, err := query.Executor().ScanStructContext(ctx, &batch)
	if err != nil {
		return nil, fmt.Errorf("unable to select latest batch: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &batch, nil
}

func LotExpiryMismatch(lotNumber string) error {
	return custom_error.NewValidationError("expiry_date", "lot %s is already stocked with a different expiry date", lotNumber)
}

// UpsertBatch stores a new lot or tops up an existing one with the same expiry.
func (r *BatchRepository) UpsertBatch(ctx context.Context, tx *goqu.TxDatabase, batch *models.DrugBatch) error {
	query := r.repository.Q(tx).Insert("drug_batches").
		Rows(goqu.Record{
			"drug_id":            batch.DrugID,
			"department_id":      batch.DepartmentID,
			"lot_number":         batch.LotNumber,
			"expiry_date":        batch.ExpiryDate,
			"manufacturer":       batch.Manufacturer,
			"remaining_quantity": batch.RemainingQuantity,
			"unit_cost":          batch.UnitCost,
			"received_at":        batch.ReceivedAt,
		}).
		OnConflict(goqu.DoUpdate("drug_id, department_id, lot_number", goqu.Record{
			"remaining_quantity": goqu.L("drug_batches.remaining_quantity + EXCLUDED.remaining_quantity"),
		}).Where(goqu.L("drug_batches.expiry_date IS NOT DISTINCT FROM EXCLUDED.expiry_date"))).
		Returning(batchColumns...)

	found, err := query.Executor().ScanStructContext(ctx, batch)
	if err != nil {
		return custom_error.TranslateDBError(err, "failed to store batch")
	}
	if !found {
		return LotExpiryMismatch(batch.LotNumber)
	}

	return nil
}

func (r *BatchRepository) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.DrugBatch, error) {
	conditions := repository.NewConditions()
	conditions.Add("drug_id", filter.DrugID)
	conditions.Add("department_id", filter.DepartmentID)

	query := r.repository.GoquDBWrapper.From("drug_batches").
		Select(batchColumns...).
		Where(conditions.Where(map[string]string{}))
	if !filter.IncludeEmpty {
		query = query.Where(goqu.C("remaining_quantity").Gt(0))
	}
	if filter.ExpiringBefore != nil {
		query = query.Where(goqu.C("expiry_date").Lt(*filter.ExpiringBefore))
	}

	batches := []models.DrugBatch{}
	if err := query.Order(fifoOrder()...).Executor().ScanStructsContext(ctx, &batches); err != nil {
		return nil, fmt.Errorf("unable to select batches: %w", err)
	}

	return batches, nil
}
