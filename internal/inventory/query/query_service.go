package query

import (
	"context"
	"substock/internal/cache"
	"substock/internal/inventory/ledger"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type SnapshotStore interface {
	GetSnapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error)
	ListSnapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error)
	LoadStock(ctx context.Context, tx *goqu.TxDatabase, stockID int) (*models.Stock, error)
}

type HistoryStore interface {
	ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error)
	StockTransactions(ctx context.Context, stockID int) ([]models.StockTransaction, error)
}

type BatchLister interface {
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.DrugBatch, error)
}

type TransferReader interface {
	LoadTransfer(ctx context.Context, tx *goqu.TxDatabase, transferID int) (*models.Transfer, error)
	ListTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)
}

type AuditReader interface {
	GetResourceLog(ctx context.Context, id int, resourceType string) ([]models.AuditLog, error)
}

type QueryService struct {
	snapshots SnapshotStore
	history   HistoryStore
	batches   BatchLister
	transfers TransferReader
	audit     AuditReader
	cache     cache.SnapshotCache
	logger    *zap.Logger
}

func NewQueryService(s SnapshotStore, h HistoryStore, b BatchLister, t TransferReader, a AuditReader, c cache.SnapshotCache, logger *zap.Logger) *QueryService {
	return &QueryService{
		snapshots: s,
		history:   h,
		batches:   b,
		transfers: t,
		audit:     a,
		cache:     c,
		logger:    logger,
	}
}

func (s *QueryService) Snapshot(ctx context.Context, stockID int) (*models.StockSnapshot, error) {
	if snapshot, ok := s.cache.Get(ctx, stockID); ok {
		return snapshot, nil
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, stockID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, *snapshot)

	return snapshot, nil
}

func (s *QueryService) Snapshots(ctx context.Context, filter models.StockFilter) ([]models.StockSnapshot, error) {
	return s.snapshots.ListSnapshots(ctx, filter)
}

// History pages through a stock's ledger, newest first.
func (s *QueryService) History(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		return nil, custom_error.NewValidationError("offset", "must not be negative")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, custom_error.NewValidationError("to", "must not be before from")
	}
	if _, err := s.snapshots.LoadStock(ctx, nil, filter.StockID); err != nil {
		return nil, err
	}

	return s.history.ListTransactions(ctx, filter)
}

func (s *QueryService) Transfer(ctx context.Context, transferID int) (*models.TransferDetail, error) {
	transfer, err := s.transfers.LoadTransfer(ctx, nil, transferID)
	if err != nil {
		return nil, err
	}
	transfer.Summarize()

	return &models.TransferDetail{Transfer: *transfer, Trail: Trail(transfer)}, nil
}

func (s *QueryService) Transfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	return s.transfers.ListTransfers(ctx, filter)
}

// Trail lists the workflow stages in order with who reached them and when. A cancelled
// transfer ends its trail at the cancellation.
func Trail(t *models.Transfer) []models.TransferStep {
	requester := t.RequestedBy
	requestedAt := t.RequestedAt
	trail := []models.TransferStep{{
		Stage:   metadata.StatusPending,
		Label:   metadata.StatusPending.Label(),
		ActorID: &requester,
		At:      &requestedAt,
		Note:    t.Purpose,
		Reached: true,
	}}

	stage := func(status metadata.TransferStatus, actor *int, at *time.Time, note string) models.TransferStep {
		return models.TransferStep{
			Stage:   status,
			Label:   status.Label(),
			ActorID: actor,
			At:      at,
			Note:    note,
			Reached: at != nil,
		}
	}

	if t.Status == metadata.StatusCancelled {
		if t.ApprovedAt != nil {
			trail = append(trail, stage(metadata.StatusApproved, t.ApprovedBy, t.ApprovedAt, t.ApprovalNote))
		}
		return append(trail, stage(metadata.StatusCancelled, t.CancelledBy, t.CancelledAt, t.CancellationNote))
	}

	final := metadata.StatusDelivered
	if t.Status == metadata.StatusPartial {
		final = metadata.StatusPartial
	}
	return append(trail,
		stage(metadata.StatusApproved, t.ApprovedBy, t.ApprovedAt, t.ApprovalNote),
		stage(metadata.StatusPrepared, t.DispensedBy, t.DispensedAt, t.DispenseNote),
		stage(final, t.ReceivedBy, t.ReceivedAt, t.ReceiveNote),
	)
}

// Reconcile replays a stock's ledger and compares it with the stored total and the sum of
// its lots.
func (s *QueryService) Reconcile(ctx context.Context, stockID int) (*models.StockReconciliation, error) {
	stock, err := s.snapshots.LoadStock(ctx, nil, stockID)
	if err != nil {
		return nil, err
	}

	entries, err := s.history.StockTransactions(ctx, stockID)
	if err != nil {
		return nil, err
	}
	ledgerTotal, replayErr := ledger.Replay(entries)

	lots, err := s.batches.ListBatches(ctx, models.BatchFilter{DrugID: &stock.DrugID, DepartmentID: &stock.DepartmentID})
	if err != nil {
		return nil, err
	}
	batchTotal := 0
	for _, lot := range lots {
		batchTotal += lot.RemainingQuantity
	}

	reconciliation := models.StockReconciliation{
		StockID:     stock.ID,
		StockTotal:  stock.TotalQuantity,
		LedgerTotal: ledgerTotal,
		BatchTotal:  batchTotal,
		Entries:     len(entries),
		Consistent:  replayErr == nil && ledgerTotal == stock.TotalQuantity && batchTotal == stock.TotalQuantity,
	}
	if !reconciliation.Consistent {
		fields := []zap.Field{
			zap.Int("stock_id", stock.ID),
			zap.Int("stock_total", stock.TotalQuantity),
			zap.Int("ledger_total", ledgerTotal),
			zap.Int("batch_total", batchTotal),
		}
		if replayErr != nil {
			fields = append(fields, zap.Error(replayErr))
		}
		s.logger.Warn("Stock does not reconcile", fields...)
	}

	return &reconciliation, nil
}

func (s *QueryService) ResourceLog(ctx context.Context, resourceType string, id int) ([]models.AuditLog, error) {
	return s.audit.GetResourceLog(ctx, id, resourceType)
}
