package transfers

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type TransferRepository interface {
	InsertTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer) error
	LoadTransfer(ctx context.Context, tx *goqu.TxDatabase, transferID int) (*models.Transfer, error)
	ListTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)
	// UpdateTransfer writes the workflow columns only while the row is still in status from
	// at the version that was read, and bumps transfer.Version on success.
	UpdateTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer, from metadata.TransferStatus) error
	UpdateItem(ctx context.Context, tx *goqu.TxDatabase, item *models.TransferItem) error
	InsertAllocations(ctx context.Context, tx *goqu.TxDatabase, itemID int, allocations []models.TransferItemAllocation) error
}

type transferRepository struct {
	Repo *repository.Repository
}

func NewRepository(r *repository.Repository) *transferRepository {
	return &transferRepository{Repo: r}
}

func (r *transferRepository) InsertTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer) error {
	query := r.Repo.Q(tx).Insert("transfers").
		Rows(goqu.Record{
			"requisition_number": transfer.RequisitionNumber,
			"from_department_id": transfer.FromDepartmentID,
			"to_department_id":   transfer.ToDepartmentID,
			"status":             transfer.Status,
			"requested_by":       transfer.RequestedBy,
			"requested_at":       transfer.RequestedAt,
			"purpose":            transfer.Purpose,
			"version":            transfer.Version,
		}).
		Returning("id")

	if _, err := query.Executor().ScanValContext(ctx, &transfer.ID); err != nil {
		return custom_error.TranslateDBError(err, "failed to insert transfer record")
	}

	for i := range transfer.Items {
		item := &transfer.Items[i]
		item.TransferID = transfer.ID
		itemQuery := r.Repo.Q(tx).Insert("transfer_items").
			Rows(goqu.Record{
				"transfer_id":        item.TransferID,
				"drug_id":            item.DrugID,
				"requested_quantity": item.RequestedQuantity,
				"reserved_quantity":  item.ReservedQuantity,
				"unit_price":         item.UnitPrice,
				"note":               item.Note,
			}).
			Returning("id")

		if _, err := itemQuery.Executor().ScanValContext(ctx, &item.ID); err != nil {
			return custom_error.TranslateDBError(err, "failed to insert transfer item")
		}
	}

	return nil
}

func (r *transferRepository) transferQuery(q repository.Queryer) *goqu.SelectDataset {
	return q.From(goqu.T("transfers").As("t")).
		Select(
			goqu.I("t.id").As("id"),
			goqu.I("t.requisition_number").As("requisition_number"),
			goqu.I("t.from_department_id").As("from_department_id"),
			goqu.I("t.to_department_id").As("to_department_id"),
			goqu.I("t.status").As("status"),
			goqu.I("t.requested_by").As("requested_by"),
			goqu.I("t.approved_by").As("approved_by"),
			goqu.I("t.dispensed_by").As("dispensed_by"),
			goqu.I("t.received_by").As("received_by"),
			goqu.I("t.cancelled_by").As("cancelled_by"),
			goqu.I("t.requested_at").As("requested_at"),
			goqu.I("t.approved_at").As("approved_at"),
			goqu.I("t.dispensed_at").As("dispensed_at"),
			goqu.I("t.received_at").As("received_at"),
			goqu.I("t.cancelled_at").As("cancelled_at"),
			goqu.I("t.purpose").As("purpose"),
			goqu.I("t.approval_note").As("approval_note"),
			goqu.I("t.dispense_note").As("dispense_note"),
			goqu.I("t.receive_note").As("receive_note"),
			goqu.I("t.cancellation_note").As("cancellation_note"),
			goqu.I("t.version").As("version"),
			goqu.I("d1.name").As("from_department_name"),
			goqu.I("d2.name").As("to_department_name"),
		).
		InnerJoin(
			goqu.T("departments").As("d1"),
			goqu.On(goqu.Ex{"t.from_department_id": goqu.I("d1.id")}),
		).
		InnerJoin(
			goqu.T("departments").As("d2"),
			goqu.On(goqu.Ex{"t.to_department_id": goqu.I("d2.id")}),
		)
}

func (r *transferRepository) LoadTransfer(ctx context.Context, tx *goqu.TxDatabase, transferID int) (*models.Transfer, error) {
	var transfer models.Transfer
	q := r.Repo.Q(tx)

	found, err := r.transferQuery(q).
		Where(goqu.Ex{"t.id": transferID}).
		Executor().ScanStructContext(ctx, &transfer)
	if err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}
	if !found {
		return nil, custom_error.NewNotFoundError("transfer", transferID)
	}

	items := []models.TransferItem{}
	itemQuery := q.From("transfer_items").
		Select(
			"id", "transfer_id", "drug_id", "requested_quantity", "approved_quantity",
			"dispensed_quantity", "received_quantity", "reserved_quantity", "unit_price",
			"lot_number", "expiry_date", "manufacturer", "note",
		).
		Where(goqu.Ex{"transfer_id": transferID}).
		Order(goqu.I("id").Asc())
	if err := itemQuery.Executor().ScanStructsContext(ctx, &items); err != nil {
		return nil, fmt.Errorf("unable to select items of transfer %d: %w", transferID, err)
	}

	var allocations []models.TransferItemAllocation
	allocationQuery := q.From(goqu.T("transfer_item_allocations").As("a")).
		Select(
			goqu.I("a.id").As("id"),
			goqu.I("a.transfer_item_id").As("transfer_item_id"),
			goqu.I("a.batch_id").As("batch_id"),
			goqu.I("a.lot_number").As("lot_number"),
			goqu.I("a.expiry_date").As("expiry_date"),
			goqu.I("a.manufacturer").As("manufacturer"),
			goqu.I("a.unit_cost").As("unit_cost"),
			goqu.I("a.quantity").As("quantity"),
		).
		InnerJoin(
			goqu.T("transfer_items").As("i"),
			goqu.On(goqu.Ex{"a.transfer_item_id": goqu.I("i.id")}),
		).
		Where(goqu.Ex{"i.transfer_id": transferID}).
		Order(goqu.I("a.id").Asc())
	if err := allocationQuery.Executor().ScanStructsContext(ctx, &allocations); err != nil {
		return nil, fmt.Errorf("unable to select allocations of transfer %d: %w", transferID, err)
	}

	for _, allocation := range allocations {
		for i := range items {
			if items[i].ID == allocation.TransferItemID {
				items[i].Allocations = append(items[i].Allocations, allocation)
			}
		}
	}

	transfer.Items = items
	transfer.Summarize()
	return &transfer, nil
}

func (r *transferRepository) ListTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	conditions := repository.NewConditions()
	if filter.Status != nil {
		conditions.Add("status", *filter.Status)
	}
	conditions.Add("from_department_id", filter.FromDepartmentID)
	conditions.Add("to_department_id", filter.ToDepartmentID)

	query := r.transferQuery(r.Repo.GoquDBWrapper)
	if !conditions.Empty() {
		aliases := map[string]string{
			"from_department_id": "t.from_department_id",
			"to_department_id":   "t.to_department_id",
			"status":             "t.status",
		}

		query = query.Where(conditions.Where(aliases))
	}
	query = query.
		Order(goqu.I("t.requested_at").Desc(), goqu.I("t.id").Desc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset))

	transfers := []models.Transfer{}
	if err := query.Executor().ScanStructsContext(ctx, &transfers); err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}

	return transfers, nil
}

func (r *transferRepository) UpdateTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer, from metadata.TransferStatus) error {
	query := r.Repo.Q(tx).Update("transfers").
		Set(goqu.Record{
			"status":            transfer.Status,
			"approved_by":       transfer.ApprovedBy,
			"approved_at":       transfer.ApprovedAt,
			"approval_note":     transfer.ApprovalNote,
			"dispensed_by":      transfer.DispensedBy,
			"dispensed_at":      transfer.DispensedAt,
			"dispense_note":     transfer.DispenseNote,
			"received_by":       transfer.ReceivedBy,
			"received_at":       transfer.ReceivedAt,
			"receive_note":      transfer.ReceiveNote,
			"cancelled_by":      transfer.CancelledBy,
			"cancelled_at":      transfer.CancelledAt,
			"cancellation_note": transfer.CancellationNote,
			"version":           goqu.L("version + 1"),
		}).
		Where(goqu.Ex{
			"id":      transfer.ID,
			"status":  from,
			"version": transfer.Version,
		})

	result, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, fmt.Sprintf("failed to update transfer %d", transfer.ID))
	}
	if err := repository.RowsAffected(result, "transfer", transfer.ID); err != nil {
		return err
	}

	transfer.Version++
	return nil
}

func (r *transferRepository) UpdateItem(ctx context.Context, tx *goqu.TxDatabase, item *models.TransferItem) error {
	query := r.Repo.Q(tx).Update("transfer_items").
		Set(goqu.Record{
			"approved_quantity":  item.ApprovedQuantity,
			"dispensed_quantity": item.DispensedQuantity,
			"received_quantity":  item.ReceivedQuantity,
			"reserved_quantity":  item.ReservedQuantity,
			"lot_number":         item.LotNumber,
			"expiry_date":        item.ExpiryDate,
			"manufacturer":       item.Manufacturer,
			"note":               item.Note,
		}).
		Where(goqu.Ex{"id": item.ID})

	result, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, fmt.Sprintf("failed to update transfer item %d", item.ID))
	}

	return repository.RowsAffected(result, "transfer item", item.ID)
}

func (r *transferRepository) InsertAllocations(ctx context.Context, tx *goqu.TxDatabase, itemID int, allocations []models.TransferItemAllocation) error {
	if len(allocations) == 0 {
		return nil
	}

	records := make([]goqu.Record, 0, len(allocations))
	for _, allocation := range allocations {
		records = append(records, goqu.Record{
			"transfer_item_id": itemID,
			"batch_id":         allocation.BatchID,
			"lot_number":       allocation.LotNumber,
			"expiry_date":      allocation.ExpiryDate,
			"manufacturer":     allocation.Manufacturer,
			"unit_cost":        allocation.UnitCost,
			"quantity":         allocation.Quantity,
		})
	}

	query := r.Repo.Q(tx).Insert("transfer_item_allocations").Rows(records)
	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return custom_error.TranslateDBError(err, "failed to insert transfer item allocations")
	}

	return nil
}
