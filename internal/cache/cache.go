package cache

import (
	"context"
	"substock/pkg/models"
)

// Invalidator is what write paths need: drop cached snapshots of stocks they changed,
// after their unit of work committed.
type Invalidator interface {
	Invalidate(ctx context.Context, stockIDs ...int)
}

type SnapshotCache interface {
	Invalidator
	Get(ctx context.Context, stockID int) (*models.StockSnapshot, bool)
	Set(ctx context.Context, snapshot models.StockSnapshot)
}

// NoopCache is used when no Redis address is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, int) (*models.StockSnapshot, bool) { return nil, false }
func (NoopCache) Set(context.Context, models.StockSnapshot)              {}
func (NoopCache) Invalidate(context.Context, ...int)                     {}
