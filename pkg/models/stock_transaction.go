package models

import (
	"substock/pkg/metadata"
	"time"

	"github.com/shopspring/decimal"
)

// StockTransaction is an immutable ledger entry.
type StockTransaction struct {
	ID                 int64                    `json:"id" db:"id"`
	StockID            int                      `json:"stock_id" db:"stock_id"`
	UserID             int                      `json:"user_id" db:"user_id"`
	Kind               metadata.TransactionKind `json:"kind" db:"kind"`
	Quantity           int                      `json:"quantity" db:"quantity"`
	BeforeQuantity     int                      `json:"before_quantity" db:"before_quantity"`
	AfterQuantity      int                      `json:"after_quantity" db:"after_quantity"`
	BeforeMinimumStock *int                     `json:"before_minimum_stock,omitempty" db:"before_minimum_stock"`
	AfterMinimumStock  *int                     `json:"after_minimum_stock,omitempty" db:"after_minimum_stock"`
	UnitCost           decimal.Decimal          `json:"unit_cost" db:"unit_cost"`
	TotalCost          decimal.Decimal          `json:"total_cost" db:"total_cost"`
	Reference          string                   `json:"reference" db:"reference"`
	Note               string                   `json:"note" db:"note"`
	CreatedAt          time.Time                `json:"created_at" db:"created_at"`
}

func (t *StockTransaction) Direction() metadata.Direction {
	return t.Kind.Direction()
}

// AppliedDelta is the change this entry made to the stock total.
func (t *StockTransaction) AppliedDelta() int {
	return t.Kind.SignedDelta(t.Quantity)
}

type TransactionPage struct {
	Items  []StockTransaction `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// TransactionFilter narrows a stock's history. Empty Kinds means every kind; From is
// inclusive and To exclusive.
type TransactionFilter struct {
	StockID int
	Kinds   []metadata.TransactionKind
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// Matches applies the kind and date filters to a single entry.
func (f TransactionFilter) Matches(entry StockTransaction) bool {
	if entry.StockID != f.StockID {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, kind := range f.Kinds {
			if kind == entry.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && entry.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !entry.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}
