package transfers

import (
	"context"
	"fmt"
	"strings"
	"substock/internal/cache"
	"substock/internal/inventory/batches"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/inventory/ledger"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StockStore interface {
	FindStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.Stock, error)
	EnsureStock(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int, unitCost decimal.Decimal) (*models.Stock, error)
}

type DrugReader interface {
	GetDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) (*models.Drug, error)
}

type Ledger interface {
	Post(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, m ledger.Movement) (*models.StockTransaction, error)
	Reserve(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, quantity int) error
	Release(ctx context.Context, tx *goqu.TxDatabase, stock *models.Stock, quantity int) error
}

type Allocator interface {
	Allocate(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int) (*batches.Allocation, error)
	Mirror(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int, consumed []models.TransferItemAllocation) error
}

type TransferService struct {
	transactor repository.Transactor
	transfers  TransferRepository
	stocks     StockStore
	drugs      DrugReader
	ledger     Ledger
	allocator  Allocator
	cache      cache.Invalidator
	log        *inventorylog.InventoryLog
	logger     *zap.Logger
	retries    int
	now        func() time.Time
}

func NewTransferService(t repository.Transactor, tr TransferRepository, s StockStore, d DrugReader, l Ledger, a Allocator, c cache.Invalidator, il *inventorylog.InventoryLog, logger *zap.Logger, retries int) *TransferService {
	return &TransferService{
		transactor: t,
		transfers:  tr,
		stocks:     s,
		drugs:      d,
		ledger:     l,
		allocator:  a,
		cache:      c,
		log:        il,
		logger:     logger,
		retries:    retries,
		now:        time.Now,
	}
}

// RequisitionNumber renders RQ-YYYYMMDD-XXXXXXXX with a random suffix.
func RequisitionNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RQ-%s-%s", at.Format("20060102"), suffix)
}

func (r CreateTransferRequest) validate() error {
	if r.ActorID == 0 {
		return custom_error.NewValidationError("requested_by", "is required")
	}
	if r.FromDepartmentID <= 0 || r.ToDepartmentID <= 0 {
		return custom_error.NewValidationError("department_id", "source and destination are required")
	}
	if r.FromDepartmentID == r.ToDepartmentID {
		return custom_error.NewValidationError("to_department_id", "must differ from the source department")
	}
	if len(r.Items) == 0 {
		return custom_error.NewValidationError("items", "at least one item is required")
	}
	seen := map[int]bool{}
	for i, item := range r.Items {
		if item.Quantity <= 0 {
			return custom_error.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be positive, got %d", item.Quantity)
		}
		if seen[item.DrugID] {
			return custom_error.NewValidationError(fmt.Sprintf("items[%d].drug_id", i), "drug %d is listed twice", item.DrugID)
		}
		seen[item.DrugID] = true
	}
	return nil
}

func (s *TransferService) Create(ctx context.Context, req CreateTransferRequest) (*models.Transfer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	transfer := models.Transfer{
		RequisitionNumber: RequisitionNumber(now),
		FromDepartmentID:  req.FromDepartmentID,
		ToDepartmentID:    req.ToDepartmentID,
		Status:            metadata.StatusPending,
		RequestedBy:       req.ActorID,
		RequestedAt:       now,
		Purpose:           req.Purpose,
	}

	err := s.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
		transfer.Items = make([]models.TransferItem, 0, len(req.Items))
		for _, item := range req.Items {
			drug, err := s.drugs.GetDrug(ctx, tx, item.DrugID)
			if err != nil {
				return err
			}
			transfer.Items = append(transfer.Items, models.TransferItem{
				DrugID:            item.DrugID,
				RequestedQuantity: item.Quantity,
				UnitPrice:         drug.UnitPrice,
				Note:              item.Note,
			})
		}
		return s.transfers.InsertTransfer(ctx, tx, &transfer)
	})
	if err != nil {
		return nil, err
	}

	transfer.Summarize()
	s.log.CreateTransferRequestLogEntry(ctx, &transfer)
	s.logger.Info("Transfer requested",
		zap.Int("transfer_id", transfer.ID),
		zap.String("requisition_number", transfer.RequisitionNumber),
		zap.Int("items", transfer.TotalItems),
	)

	return &transfer, nil
}

// step is one transition applied to a transfer loaded inside tx. It returns the stock ids
// whose cached snapshots must be dropped after commit.
type step func(tx *goqu.TxDatabase, transfer *models.Transfer, at time.Time) ([]int, error)

var actionTargets = map[metadata.TransferAction]metadata.TransferStatus{
	metadata.ActionApprove:  metadata.StatusApproved,
	metadata.ActionDispense: metadata.StatusPrepared,
	metadata.ActionReceive:  metadata.StatusDelivered,
	metadata.ActionCancel:   metadata.StatusCancelled,
}

// advance runs a transition in its own unit of work. The status update is conditional on
// the status and version read, so of two concurrent callers only one commits; the other is
// retried, sees the new status and gets an InvalidTransitionError.
func (s *TransferService) advance(ctx context.Context, transferID int, actorID int, action metadata.TransferAction, apply step) (*models.Transfer, error) {
	var result *models.Transfer
	var touched []int

	err := repository.RetryOnConflict(ctx, s.retries, func() error {
		return s.transactor.WithTransaction(ctx, func(tx *goqu.TxDatabase) error {
			transfer, err := s.transfers.LoadTransfer(ctx, tx, transferID)
			if err != nil {
				return err
			}

			from := transfer.Status
			targets := from.Targets(action)
			if len(targets) == 0 {
				return &custom_error.InvalidTransitionError{
					Resource: "transfer",
					ID:       transferID,
					Action:   string(action),
					From:     string(from),
					To:       string(actionTargets[action]),
				}
			}

			// stage timestamps never run backwards
			at := s.now()
			if last := transfer.LastStageAt(); at.Before(last) {
				at = last
			}

			touched, err = apply(tx, transfer, at)
			if err != nil {
				return err
			}
			if !from.CanTransitionTo(transfer.Status) {
				return fmt.Errorf("%s left transfer %d in %s", action, transferID, transfer.Status)
			}
			if err := s.transfers.UpdateTransfer(ctx, tx, transfer, from); err != nil {
				return err
			}

			result = transfer
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	result.Summarize()
	s.cache.Invalidate(ctx, touched...)
	s.log.CreateTransferAuditLogEntry(ctx, action, result, actorID)
	s.logger.Info("Transfer advanced",
		zap.Int("transfer_id", result.ID),
		zap.String("action", string(action)),
		zap.String("status", string(result.Status)),
	)

	return result, nil
}

func quantitiesByItem(transfer *models.Transfer, items []ItemQuantity) (map[int]ItemQuantity, error) {
	byItem := make(map[int]ItemQuantity, len(items))
	for i, item := range items {
		if transfer.Item(item.ItemID) == nil {
			return nil, custom_error.NewValidationError(fmt.Sprintf("items[%d].item_id", i), "item %d is not part of transfer %d", item.ItemID, transfer.ID)
		}
		if _, dup := byItem[item.ItemID]; dup {
			return nil, custom_error.NewValidationError(fmt.Sprintf("items[%d].item_id", i), "item %d is listed twice", item.ItemID)
		}
		byItem[item.ItemID] = item
	}
	return byItem, nil
}

func (s *TransferService) Approve(ctx context.Context, req StepRequest) (*models.Transfer, error) {
	return s.advance(ctx, req.TransferID, req.ActorID, metadata.ActionApprove, func(tx *goqu.TxDatabase, transfer *models.Transfer, at time.Time) ([]int, error) {
		byItem, err := quantitiesByItem(transfer, req.Items)
		if err != nil {
			return nil, err
		}

		var touched []int
		for i := range transfer.Items {
			item := &transfer.Items[i]
			approved := item.RequestedQuantity
			if q, ok := byItem[item.ID]; ok {
				if q.Quantity != nil {
					approved = *q.Quantity
				}
				item.Note = joinNotes(item.Note, q.Note)
			}
			if approved < 0 || approved > item.RequestedQuantity {
				return nil, custom_error.NewValidationError("approved_quantity", "item %d: approved %d must be between 0 and requested %d", item.ID, approved, item.RequestedQuantity)
			}
			item.ApprovedQuantity = &approved

			stock, err := s.stocks.FindStock(ctx, tx, item.DrugID, transfer.FromDepartmentID)
			if err != nil {
				return nil, err
			}
			if stock != nil {
				reserve := min(approved, stock.AvailableQuantity())
				if err := s.ledger.Reserve(ctx, tx, stock, reserve); err != nil {
					return nil, err
				}
				item.ReservedQuantity = max(reserve, 0)
				touched = append(touched, stock.ID)
			}

			if err := s.transfers.UpdateItem(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		actor := req.ActorID
		transfer.ApprovedBy = &actor
		transfer.ApprovedAt = &at
		transfer.ApprovalNote = req.Note
		transfer.Status = metadata.StatusApproved
		return touched, nil
	})
}

// Dispense takes each approved item from the source lots FIFO by expiry. Whatever the
// source cannot cover is recorded as a shortage note on the item.
func (s *TransferService) Dispense(ctx context.Context, req StepRequest) (*models.Transfer, error) {
	return s.advance(ctx, req.TransferID, req.ActorID, metadata.ActionDispense, func(tx *goqu.TxDatabase, transfer *models.Transfer, at time.Time) ([]int, error) {
		byItem, err := quantitiesByItem(transfer, req.Items)
		if err != nil {
			return nil, err
		}

		var touched []int
		for i := range transfer.Items {
			item := &transfer.Items[i]
			approved := 0
			if item.ApprovedQuantity != nil {
				approved = *item.ApprovedQuantity
			}
			if q, ok := byItem[item.ID]; ok {
				item.Note = joinNotes(item.Note, q.Note)
			}

			dispensed, stockID, err := s.dispenseItem(ctx, tx, transfer, item, approved, req.ActorID)
			if err != nil {
				return nil, err
			}
			if stockID != 0 {
				touched = append(touched, stockID)
			}

			item.DispensedQuantity = &dispensed
			item.ReservedQuantity = 0
			if dispensed < approved {
				item.Note = joinNotes(item.Note, ShortageNote(approved, dispensed))
			}
			if err := s.transfers.UpdateItem(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		actor := req.ActorID
		transfer.DispensedBy = &actor
		transfer.DispensedAt = &at
		transfer.DispenseNote = req.Note
		transfer.Status = metadata.StatusPrepared
		return touched, nil
	})
}

func (s *TransferService) dispenseItem(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer, item *models.TransferItem, approved int, actorID int) (int, int, error) {
	stock, err := s.stocks.FindStock(ctx, tx, item.DrugID, transfer.FromDepartmentID)
	if err != nil || stock == nil {
		return 0, 0, err
	}

	own := min(item.ReservedQuantity, stock.ReservedQuantity)
	limit := min(approved, stock.AvailableQuantity()+own)

	allocation, err := s.allocator.Allocate(ctx, tx, item.DrugID, transfer.FromDepartmentID, max(limit, 0))
	if err != nil {
		return 0, 0, err
	}

	if allocation.Allocated == 0 {
		if err := s.ledger.Release(ctx, tx, stock, own); err != nil {
			return 0, 0, err
		}
		return 0, stock.ID, nil
	}

	_, err = s.ledger.Post(ctx, tx, stock, ledger.Movement{
		Kind:            metadata.KindTransferOut,
		Quantity:        allocation.Allocated,
		ReservedRelease: own,
		ActorID:         actorID,
		Reference:       transfer.RequisitionNumber,
	})
	if err != nil {
		return 0, 0, err
	}

	allocations := make([]models.TransferItemAllocation, 0, len(allocation.Consumptions))
	for _, c := range allocation.Consumptions {
		allocations = append(allocations, models.TransferItemAllocation{
			TransferItemID: item.ID,
			BatchID:        c.BatchID,
			LotNumber:      c.LotNumber,
			ExpiryDate:     c.ExpiryDate,
			Manufacturer:   c.Manufacturer,
			UnitCost:       c.UnitCost,
			Quantity:       c.Quantity,
		})
	}
	if err := s.transfers.InsertAllocations(ctx, tx, item.ID, allocations); err != nil {
		return 0, 0, err
	}
	item.Allocations = allocations
	item.LotNumber, item.ExpiryDate, item.Manufacturer = allocation.Annotation()

	return allocation.Allocated, stock.ID, nil
}

// Receive books what arrived into the destination. The transfer is DELIVERED only when
// every item arrived in the approved quantity; any dispense shortage or transit loss ends
// it as PARTIAL.
func (s *TransferService) Receive(ctx context.Context, req StepRequest) (*models.Transfer, error) {
	return s.advance(ctx, req.TransferID, req.ActorID, metadata.ActionReceive, func(tx *goqu.TxDatabase, transfer *models.Transfer, at time.Time) ([]int, error) {
		byItem, err := quantitiesByItem(transfer, req.Items)
		if err != nil {
			return nil, err
		}

		var touched []int
		complete := true
		for i := range transfer.Items {
			item := &transfer.Items[i]
			dispensed := 0
			if item.DispensedQuantity != nil {
				dispensed = *item.DispensedQuantity
			}

			received := dispensed
			q, ok := byItem[item.ID]
			if ok && q.Quantity != nil {
				received = *q.Quantity
			}
			if received < 0 || received > dispensed {
				return nil, custom_error.NewValidationError("received_quantity", "item %d: received %d must be between 0 and dispensed %d", item.ID, received, dispensed)
			}
			if received < dispensed && q.Note == "" && req.Note == "" {
				return nil, custom_error.NewValidationError("note", "item %d: %d of %d dispensed units missing, explain the difference", item.ID, dispensed-received, dispensed)
			}
			item.Note = joinNotes(item.Note, q.Note)

			if received > 0 {
				stock, err := s.stocks.EnsureStock(ctx, tx, item.DrugID, transfer.ToDepartmentID, item.UnitPrice)
				if err != nil {
					return nil, err
				}
				if err := s.allocator.Mirror(ctx, tx, item.DrugID, transfer.ToDepartmentID, received, item.Allocations); err != nil {
					return nil, err
				}
				_, err = s.ledger.Post(ctx, tx, stock, ledger.Movement{
					Kind:      metadata.KindTransferIn,
					Quantity:  received,
					ActorID:   req.ActorID,
					Reference: transfer.RequisitionNumber,
					Note:      q.Note,
				})
				if err != nil {
					return nil, err
				}
				touched = append(touched, stock.ID)
			}

			item.ReceivedQuantity = &received
			if item.ApprovedQuantity == nil || received != *item.ApprovedQuantity {
				complete = false
			}
			if err := s.transfers.UpdateItem(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		actor := req.ActorID
		transfer.ReceivedBy = &actor
		transfer.ReceivedAt = &at
		transfer.ReceiveNote = req.Note
		transfer.Status = metadata.StatusPartial
		if complete {
			transfer.Status = metadata.StatusDelivered
		}
		return touched, nil
	})
}

// Cancel stops a transfer before anything moved. No ledger entries are written; held
// units are released.
func (s *TransferService) Cancel(ctx context.Context, req StepRequest) (*models.Transfer, error) {
	return s.advance(ctx, req.TransferID, req.ActorID, metadata.ActionCancel, func(tx *goqu.TxDatabase, transfer *models.Transfer, at time.Time) ([]int, error) {
		var touched []int
		for i := range transfer.Items {
			item := &transfer.Items[i]
			if item.ReservedQuantity == 0 {
				continue
			}
			stock, err := s.stocks.FindStock(ctx, tx, item.DrugID, transfer.FromDepartmentID)
			if err != nil {
				return nil, err
			}
			if stock != nil {
				if err := s.ledger.Release(ctx, tx, stock, item.ReservedQuantity); err != nil {
					return nil, err
				}
				touched = append(touched, stock.ID)
			}
			item.ReservedQuantity = 0
			if err := s.transfers.UpdateItem(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		actor := req.ActorID
		transfer.CancelledBy = &actor
		transfer.CancelledAt = &at
		transfer.CancellationNote = req.Note
		transfer.Status = metadata.StatusCancelled
		return touched, nil
	})
}

func ShortageNote(approved, dispensed int) string {
	return fmt.Sprintf("จ่ายไม่ครบ: อนุมัติ %d จ่ายได้ %d ขาด %d", approved, dispensed, approved-dispensed)
}

func joinNotes(notes ...string) string {
	parts := make([]string, 0, len(notes))
	for _, note := range notes {
		if note = strings.TrimSpace(note); note != "" {
			parts = append(parts, note)
		}
	}
	return strings.Join(parts, "; ")
}
