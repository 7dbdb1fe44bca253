package container

import (
	"context"
	"database/sql"
	auditLogRepo "substock/internal/auditlog"
	"substock/internal/cache"
	"substock/internal/core/config"
	"substock/internal/departments"
	"substock/internal/inventory/batches"
	"substock/internal/inventory/catalog"
	inventorylog "substock/internal/inventory/inventory_log"
	"substock/internal/inventory/ledger"
	"substock/internal/inventory/query"
	"substock/internal/inventory/stocks"
	"substock/internal/inventory/transfers"
	"substock/internal/repository"
	"substock/pkg/auditlog"

	"go.uber.org/zap"
)

type Container struct {
	Repository        *repository.Repository
	AuditLog          *auditlog.Auditlog
	Cache             cache.SnapshotCache
	StockHandler      *stocks.StockHandler
	TransferHandler   *transfers.TransferHandler
	BatchHandler      *batches.BatchHandler
	CatalogHandler    *catalog.CatalogHandler
	DepartmentHandler *departments.DepartmentHandler
	QueryHandler      *query.QueryHandler
}

func NewAppContainer(ctx context.Context, db *sql.DB, cfg config.Config, logger *zap.Logger) *Container {
	repo := repository.NewRepository(db)
	auditRepo := auditLogRepo.NewRepository(repo)
	auditLog := auditlog.NewAuditLog(auditRepo, logger)
	inventoryLog := inventorylog.NewInventoryLog(auditLog)
	snapshotCache := newSnapshotCache(ctx, cfg, logger)

	stockRepo := stocks.NewRepository(repo)
	transactionRepo := ledger.NewTransactionRepository(repo)
	batchRepo := batches.NewRepository(repo)
	drugRepo := catalog.NewRepository(repo)
	transferRepo := transfers.NewRepository(repo)

	allocator := batches.NewAllocator(batchRepo)
	stockLedger := ledger.NewLedger(repo, stockRepo, transactionRepo, allocator, logger)
	queryService := query.NewQueryService(stockRepo, transactionRepo, batchRepo, transferRepo, auditRepo, snapshotCache, logger)

	stockService := stocks.NewStockService(repo, stockRepo, stockLedger, allocator, snapshotCache, inventoryLog, logger, cfg.ConflictRetries)
	transferService := transfers.NewTransferService(repo, transferRepo, stockRepo, drugRepo, stockLedger, allocator, snapshotCache, inventoryLog, logger, cfg.ConflictRetries)
	receiptService := batches.NewReceiptService(repo, stockRepo, drugRepo, batchRepo, stockLedger, snapshotCache, inventoryLog, logger)
	catalogService := catalog.NewCatalogService(repo, drugRepo, stockRepo, stockLedger, snapshotCache, inventoryLog, logger)

	return &Container{
		Repository:        repo,
		AuditLog:          auditLog,
		Cache:             snapshotCache,
		StockHandler:      stocks.NewStockHandler(stockService, queryService),
		TransferHandler:   transfers.NewHandler(transferService, queryService),
		BatchHandler:      batches.NewBatchHandler(receiptService),
		CatalogHandler:    catalog.NewCatalogHandler(catalogService),
		DepartmentHandler: departments.NewDepartmentHandler(departments.NewDepartmentRepository(repo), queryService),
		QueryHandler:      query.NewQueryHandler(queryService),
	}
}

// newSnapshotCache falls back to no caching when Redis is not configured or not reachable.
func newSnapshotCache(ctx context.Context, cfg config.Config, logger *zap.Logger) cache.SnapshotCache {
	if cfg.RedisAddr == "" {
		return cache.NoopCache{}
	}

	client, err := cache.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("Redis unavailable, stock snapshots will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return cache.NoopCache{}
	}

	return cache.NewRedisCache(client, cfg.SnapshotCacheTTL, logger)
}
