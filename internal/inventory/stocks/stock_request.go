package stocks

type AdjustStockRequest struct {
	ID               int     `uri:"id" binding:"required"`
	DepartmentID     *int    `json:"department_id"`
	NewTotalQuantity *int    `json:"total_quantity"`
	NewMinimumStock  *int    `json:"minimum_stock"`
	Reason           *string `json:"reason"`
	Reference        string  `json:"reference"`
	ExpectedVersion  *int    `json:"version"`
}

type StockQuery struct {
	DepartmentID *int `form:"department_id"`
	DrugID       *int `form:"drug_id"`
	LowStock     bool `form:"low_stock"`
}

type HistoryQuery struct {
	Kinds  []string `form:"kind"`
	From   string   `form:"from"`
	To     string   `form:"to"`
	Limit  int      `form:"limit,default=50"`
	Offset int      `form:"offset,default=0"`
}
