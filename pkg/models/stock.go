package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the aggregate quantity of one drug in one department.
type Stock struct {
	ID               int             `json:"id" db:"id"`
	DrugID           int             `json:"drug_id" db:"drug_id"`
	DepartmentID     int             `json:"department_id" db:"department_id"`
	TotalQuantity    int             `json:"total_quantity" db:"total_quantity"`
	ReservedQuantity int             `json:"reserved_quantity" db:"reserved_quantity"`
	MinimumStock     int             `json:"minimum_stock" db:"minimum_stock"`
	UnitCost         decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalValue       decimal.Decimal `json:"total_value" db:"total_value"`
	Version          int             `json:"version" db:"version"`
	LastUpdated      time.Time       `json:"last_updated" db:"last_updated"`
}

func (s *Stock) AvailableQuantity() int {
	return s.TotalQuantity - s.ReservedQuantity
}

func (s *Stock) IsLowStock() bool {
	return s.MinimumStock > 0 && s.AvailableQuantity() < s.MinimumStock
}

// Revalue recomputes the monetary value after a quantity or price change.
func (s *Stock) Revalue() {
	s.TotalValue = s.UnitCost.Mul(decimal.NewFromInt(int64(s.TotalQuantity))).Round(2)
}

func (s *Stock) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   s.ID,
		ResourceType: AuditResourceStock,
	}
}

// StockSnapshot is the read projection served to the UI and reporting layers.
type StockSnapshot struct {
	StockID           int             `json:"id" db:"stock_id"`
	DrugID            int             `json:"drug_id" db:"drug_id"`
	DrugCode          string          `json:"drug_code" db:"drug_code"`
	DrugName          string          `json:"drug_name" db:"drug_name"`
	DrugUnit          string          `json:"drug_unit" db:"drug_unit"`
	DepartmentID      int             `json:"department_id" db:"department_id"`
	DepartmentName    string          `json:"department_name" db:"department_name"`
	TotalQuantity     int             `json:"total_quantity" db:"total_quantity"`
	ReservedQuantity  int             `json:"reserved_quantity" db:"reserved_quantity"`
	AvailableQuantity int             `json:"available_quantity" db:"-"`
	MinimumStock      int             `json:"minimum_stock" db:"minimum_stock"`
	LowStock          bool            `json:"low_stock" db:"-"`
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalValue        decimal.Decimal `json:"total_value" db:"total_value"`
	Version           int             `json:"version" db:"version"`
	LastUpdated       time.Time       `json:"last_updated" db:"last_updated"`
}

// Derive fills the computed availability fields.
func (s *StockSnapshot) Derive() {
	s.AvailableQuantity = s.TotalQuantity - s.ReservedQuantity
	s.LowStock = s.MinimumStock > 0 && s.AvailableQuantity < s.MinimumStock
}

// StockReconciliation compares the three views of a stock total that must agree.
type StockReconciliation struct {
	StockID     int  `json:"stock_id"`
	StockTotal  int  `json:"stock_total"`
	LedgerTotal int  `json:"ledger_total"`
	BatchTotal  int  `json:"batch_total"`
	Entries     int  `json:"entries"`
	Consistent  bool `json:"consistent"`
}

type StockFilter struct {
	DepartmentID *int
	DrugID       *int
	LowStock     bool
}
