package inventorylog

import (
	"context"
	"substock/pkg/auditlog"
	"substock/pkg/metadata"
	"substock/pkg/models"
)

type InventoryLog struct {
	a *auditlog.Auditlog
}

func NewInventoryLog(a *auditlog.Auditlog) *InventoryLog {
	return &InventoryLog{a: a}
}

var transferMessages = map[metadata.TransferStatus]string{
	metadata.StatusPending:   "สร้างใบเบิกยา",
	metadata.StatusApproved:  "อนุมัติใบเบิกยา",
	metadata.StatusPrepared:  "จ่ายยาตามใบเบิก",
	metadata.StatusDelivered: "รับยาครบตามใบเบิก",
	metadata.StatusPartial:   "รับยาไม่ครบตามใบเบิก",
	metadata.StatusCancelled: "ยกเลิกใบเบิกยา",
}

// CreateTransferAuditLogEntry records the transfer reaching its current status, with the
// item quantities as they stand after the step.
func (s *InventoryLog) CreateTransferAuditLogEntry(ctx context.Context, action metadata.TransferAction, ts *models.Transfer, actorID int) {
	items := make([]map[string]interface{}, 0, len(ts.Items))
	for _, item := range ts.Items {
		items = append(items, map[string]interface{}{
			"drug_id":   item.DrugID,
			"requested": item.RequestedQuantity,
			"approved":  item.ApprovedQuantity,
			"dispensed": item.DispensedQuantity,
			"received":  item.ReceivedQuantity,
			"lot":       item.LotNumber,
			"note":      item.Note,
		})
	}

	s.a.Log(
		ctx,
		string(action),
		map[string]interface{}{
			"transfer_id":        ts.ID,
			"requisition_number": ts.RequisitionNumber,
			"from_department_id": ts.FromDepartmentID,
			"to_department_id":   ts.ToDepartmentID,
			"status":             ts.Status,
			"items":              items,
			"msg":                transferMessages[ts.Status],
		},
		ts,
		actorID,
	)
}

func (s *InventoryLog) CreateTransferRequestLogEntry(ctx context.Context, ts *models.Transfer) {
	s.a.Log(
		ctx,
		"create",
		map[string]interface{}{
			"transfer_id":        ts.ID,
			"requisition_number": ts.RequisitionNumber,
			"from_department_id": ts.FromDepartmentID,
			"to_department_id":   ts.ToDepartmentID,
			"total_items":        ts.TotalItems,
			"msg":                transferMessages[metadata.StatusPending],
		},
		ts,
		ts.RequestedBy,
	)
}

func (s *InventoryLog) CreateStockMovementLogEntry(ctx context.Context, action string, stock *models.Stock, entry *models.StockTransaction) {
	s.a.Log(
		ctx,
		action,
		map[string]interface{}{
			"transaction_id":  entry.ID,
			"kind":            entry.Kind,
			"quantity":        entry.Quantity,
			"before_quantity": entry.BeforeQuantity,
			"after_quantity":  entry.AfterQuantity,
			"department_id":   stock.DepartmentID,
			"msg":             entry.Note,
		},
		stock,
		entry.UserID,
	)
}

func (s *InventoryLog) CreatePriceUpdateLogEntry(ctx context.Context, update *models.PriceUpdate, actorID int) {
	s.a.Log(
		ctx,
		"price_update",
		map[string]interface{}{
			"drug_id":         update.Drug.ID,
			"previous_price":  update.PreviousPrice,
			"unit_price":      update.Drug.UnitPrice,
			"restamped_stock": len(update.Transactions),
			"msg":             metadata.KindDataUpdate.DefaultReason(),
		},
		&update.Drug,
		actorID,
	)
}
