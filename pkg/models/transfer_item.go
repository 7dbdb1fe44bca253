package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferItem is one drug line of a transfer with its four quantity checkpoints.
type TransferItem struct {
	ID                int                      `json:"id" db:"id"`
	TransferID        int                      `json:"transfer_id" db:"transfer_id"`
	DrugID            int                      `json:"drug_id" db:"drug_id"`
	RequestedQuantity int                      `json:"requested_quantity" db:"requested_quantity"`
	ApprovedQuantity  *int                     `json:"approved_quantity" db:"approved_quantity"`
	DispensedQuantity *int                     `json:"dispensed_quantity" db:"dispensed_quantity"`
	ReceivedQuantity  *int                     `json:"received_quantity" db:"received_quantity"`
	ReservedQuantity  int                      `json:"reserved_quantity" db:"reserved_quantity"`
	UnitPrice         decimal.Decimal          `json:"unit_price" db:"unit_price"`
	LotNumber         string                   `json:"lot_number" db:"lot_number"`
	ExpiryDate        *time.Time               `json:"expiry_date" db:"expiry_date"`
	Manufacturer      string                   `json:"manufacturer" db:"manufacturer"`
	Note              string                   `json:"note" db:"note"`
	Value             decimal.Decimal          `json:"value" db:"-"`
	Shortage          int                      `json:"shortage" db:"-"`
	Allocations       []TransferItemAllocation `json:"allocations,omitempty" db:"-"`
}

// EffectiveQuantity is the latest populated checkpoint.
func (i *TransferItem) EffectiveQuantity() int {
	switch {
	case i.ReceivedQuantity != nil:
		return *i.ReceivedQuantity
	case i.DispensedQuantity != nil:
		return *i.DispensedQuantity
	case i.ApprovedQuantity != nil:
		return *i.ApprovedQuantity
	default:
		return i.RequestedQuantity
	}
}

func (i *TransferItem) Summarize() {
	i.Value = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.EffectiveQuantity()))).Round(2)
	i.Shortage = 0
	if i.ApprovedQuantity != nil && i.DispensedQuantity != nil {
		i.Shortage = *i.ApprovedQuantity - *i.DispensedQuantity
	}
}

// QuantitiesOrdered checks 0 <= received <= dispensed <= approved <= requested over the
// checkpoints populated so far.
func (i *TransferItem) QuantitiesOrdered() bool {
	upper := i.RequestedQuantity
	if upper <= 0 {
		return false
	}
	for _, q := range []*int{i.ApprovedQuantity, i.DispensedQuantity, i.ReceivedQuantity} {
		if q == nil {
			continue
		}
		if *q < 0 || *q > upper {
			return false
		}
		upper = *q
	}
	return i.ReservedQuantity >= 0
}

// TransferItemAllocation records how many units of one source batch an item consumed.
type TransferItemAllocation struct {
	ID             int             `json:"id" db:"id"`
	TransferItemID int             `json:"transfer_item_id" db:"transfer_item_id"`
	BatchID        int             `json:"batch_id" db:"batch_id"`
	LotNumber      string          `json:"lot_number" db:"lot_number"`
	ExpiryDate     *time.Time      `json:"expiry_date" db:"expiry_date"`
	Manufacturer   string          `json:"manufacturer" db:"manufacturer"`
	UnitCost       decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	Quantity       int             `json:"quantity" db:"quantity"`
}
