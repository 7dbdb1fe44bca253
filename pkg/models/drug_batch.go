package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DrugBatch is one received lot of a drug held by a department.
type DrugBatch struct {
	ID                int             `json:"id" db:"id"`
	DrugID            int             `json:"drug_id" db:"drug_id"`
	DepartmentID      int             `json:"department_id" db:"department_id"`
	LotNumber         string          `json:"lot_number" db:"lot_number"`
	ExpiryDate        *time.Time      `json:"expiry_date" db:"expiry_date"`
	Manufacturer      string          `json:"manufacturer" db:"manufacturer"`
	RemainingQuantity int             `json:"remaining_quantity" db:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	ReceivedAt        time.Time       `json:"received_at" db:"received_at"`
}

func (b *DrugBatch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

func (b *DrugBatch) ExpiresWithin(now time.Time, window time.Duration) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now.Add(window))
}

// ExpiresBefore orders lots for FIFO-by-expiry consumption: earliest expiry first, lots
// without expiry last, then earliest received, then lowest id.
func (b *DrugBatch) ExpiresBefore(other *DrugBatch) bool {
	switch {
	case b.ExpiryDate != nil && other.ExpiryDate == nil:
		return true
	case b.ExpiryDate == nil && other.ExpiryDate != nil:
		return false
	case b.ExpiryDate != nil && !b.ExpiryDate.Equal(*other.ExpiryDate):
		return b.ExpiryDate.Before(*other.ExpiryDate)
	case !b.ReceivedAt.Equal(other.ReceivedAt):
		return b.ReceivedAt.Before(other.ReceivedAt)
	default:
		return b.ID < other.ID
	}
}

type BatchFilter struct {
	DrugID         *int
	DepartmentID   *int
	IncludeEmpty   bool
	ExpiringBefore *time.Time
}

func (f BatchFilter) Matches(b DrugBatch) bool {
	if f.DrugID != nil && b.DrugID != *f.DrugID {
		return false
	}
	if f.DepartmentID != nil && b.DepartmentID != *f.DepartmentID {
		return false
	}
	if !f.IncludeEmpty && b.RemainingQuantity == 0 {
		return false
	}
	if f.ExpiringBefore != nil && (b.ExpiryDate == nil || !b.ExpiryDate.Before(*f.ExpiringBefore)) {
		return false
	}
	return true
}
