package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Drug is a catalog entry. The catalog itself is maintained elsewhere; the core only reads
// it and reacts to price changes.
type Drug struct {
	ID        int             `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	Name      string          `json:"name" db:"name"`
	Unit      string          `json:"unit" db:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func (d *Drug) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   d.ID,
		ResourceType: AuditResourceDrug,
	}
}

type PriceUpdate struct {
	Drug          Drug               `json:"drug"`
	PreviousPrice decimal.Decimal    `json:"previous_price"`
	Transactions  []StockTransaction `json:"transactions"`
}
