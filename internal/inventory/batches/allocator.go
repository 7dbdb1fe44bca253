package batches

import (
	"context"
	"fmt"
	"sort"
	"strings"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
)

type Store interface {
	// LockBatches returns the non-empty lots of a stock and holds them until tx ends.
	LockBatches(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) ([]models.DrugBatch, error)
	// DecrementBatch fails with a ConflictError when the lot no longer holds quantity.
	DecrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error
	IncrementBatch(ctx context.Context, tx *goqu.TxDatabase, batchID, quantity int) error
	// LatestBatch is the most recently received lot, empty or not; nil when there is none.
	LatestBatch(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID int) (*models.DrugBatch, error)
	// UpsertBatch inserts the lot or adds its remaining quantity to the existing lot with the
	// same number, and fills batch with the stored row.
	UpsertBatch(ctx context.Context, tx *goqu.TxDatabase, batch *models.DrugBatch) error
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.DrugBatch, error)
}

type Consumption struct {
	BatchID      int             `json:"batch_id"`
	LotNumber    string          `json:"lot_number"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
	Manufacturer string          `json:"manufacturer"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Quantity     int             `json:"quantity"`
}

type Allocation struct {
	Consumptions []Consumption `json:"consumptions"`
	Requested    int           `json:"requested"`
	Allocated    int           `json:"allocated"`
	Unsatisfied  int           `json:"unsatisfied"`
}

// Plan picks lots FIFO by expiry without touching them. Lots without an expiry date go
// last; equal expiries fall back to the receipt date and then the id.
func Plan(batches []models.DrugBatch, quantity int) Allocation {
	allocation := Allocation{Consumptions: []Consumption{}, Requested: quantity}
	if quantity <= 0 {
		return allocation
	}

	ordered := make([]models.DrugBatch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExpiresBefore(&ordered[j])
	})

	remaining := quantity
	for _, batch := range ordered {
		if remaining == 0 {
			break
		}
		if batch.RemainingQuantity <= 0 {
			continue
		}
		take := batch.RemainingQuantity
		if take > remaining {
			take = remaining
		}
		allocation.Consumptions = append(allocation.Consumptions, Consumption{
			BatchID:      batch.ID,
			LotNumber:    batch.LotNumber,
			ExpiryDate:   batch.ExpiryDate,
			Manufacturer: batch.Manufacturer,
			UnitCost:     batch.UnitCost,
			Quantity:     take,
		})
		remaining -= take
	}

	allocation.Allocated = quantity - remaining
	allocation.Unsatisfied = remaining
	return allocation
}

// Annotation summarizes the consumed lots for a transfer item: lot numbers and distinct
// manufacturers joined by commas in consumption order, and the earliest expiry.
func (a Allocation) Annotation() (lotNumber string, expiry *time.Time, manufacturer string) {
	lots := make([]string, 0, len(a.Consumptions))
	var manufacturers []string
	seen := map[string]bool{}
	for _, c := range a.Consumptions {
		lots = append(lots, c.LotNumber)
		if c.Manufacturer != "" && !seen[c.Manufacturer] {
			seen[c.Manufacturer] = true
			manufacturers = append(manufacturers, c.Manufacturer)
		}
		if c.ExpiryDate != nil && (expiry == nil || c.ExpiryDate.Before(*expiry)) {
			expiry = c.ExpiryDate
		}
	}
	return strings.Join(lots, ","), expiry, strings.Join(manufacturers, ",")
}

type Allocator struct {
	store Store
	now   func() time.Time
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, now: time.Now}
}

// Allocate consumes up to quantity units FIFO by expiry inside tx. Running short is not an
// error; the remainder is reported as Unsatisfied.
func (a *Allocator) Allocate(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int) (*Allocation, error) {
	if quantity < 0 {
		return nil, custom_error.NewValidationError("quantity", "must not be negative, got %d", quantity)
	}

	batches, err := a.store.LockBatches(ctx, tx, drugID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batches of drug %d in department %d: %w", drugID, departmentID, err)
	}

	allocation := Plan(batches, quantity)
	for _, c := range allocation.Consumptions {
		if err := a.store.DecrementBatch(ctx, tx, c.BatchID, c.Quantity); err != nil {
			return nil, err
		}
	}

	return &allocation, nil
}

func (a *Allocator) Consume(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int) (int, error) {
	allocation, err := a.Allocate(ctx, tx, drugID, departmentID, quantity)
	if err != nil {
		return 0, err
	}
	return allocation.Allocated, nil
}

// Credit adds units found by a manual count to the most recently received lot, or to a
// dated adjustment lot when the stock has never received one.
func (a *Allocator) Credit(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int, unitCost decimal.Decimal) error {
	if quantity <= 0 {
		return nil
	}

	latest, err := a.store.LatestBatch(ctx, tx, drugID, departmentID)
	if err != nil {
		return fmt.Errorf("failed to find latest batch of drug %d in department %d: %w", drugID, departmentID, err)
	}
	if latest != nil {
		return a.store.IncrementBatch(ctx, tx, latest.ID, quantity)
	}

	now := a.now()
	return a.store.UpsertBatch(ctx, tx, &models.DrugBatch{
		DrugID:            drugID,
		DepartmentID:      departmentID,
		LotNumber:         AdjustmentLotNumber(now),
		RemainingQuantity: quantity,
		UnitCost:          unitCost,
		ReceivedAt:        now,
	})
}

func AdjustmentLotNumber(at time.Time) string {
	return "ADJ-" + at.Format("20060102")
}

// Mirror credits the lots consumed at the source into the destination department, taking
// quantity units in consumption order.
func (a *Allocator) Mirror(ctx context.Context, tx *goqu.TxDatabase, drugID, departmentID, quantity int, consumed []models.TransferItemAllocation) error {
	remaining := quantity
	now := a.now()
	for _, c := range consumed {
		if remaining == 0 {
			break
		}
		take := c.Quantity
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		err := a.store.UpsertBatch(ctx, tx, &models.DrugBatch{
			DrugID:            drugID,
			DepartmentID:      departmentID,
			LotNumber:         c.LotNumber,
			ExpiryDate:        c.ExpiryDate,
			Manufacturer:      c.Manufacturer,
			RemainingQuantity: take,
			UnitCost:          c.UnitCost,
			ReceivedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("failed to mirror lot %s into department %d: %w", c.LotNumber, departmentID, err)
		}
		remaining -= take
	}
	if remaining > 0 {
		return fmt.Errorf("consumed lots cover %d of %d received units", quantity-remaining, quantity)
	}
	return nil
}
