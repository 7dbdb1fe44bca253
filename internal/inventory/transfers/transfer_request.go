package transfers

type CreateItemRequest struct {
	DrugID   int    `json:"drug_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Note     string `json:"note"`
}

type CreateTransferRequest struct {
	FromDepartmentID int                 `json:"from_department_id" binding:"required"`
	ToDepartmentID   int                 `json:"to_department_id" binding:"required"`
	Purpose          string              `json:"purpose"`
	Items            []CreateItemRequest `json:"items" binding:"required"`
	ActorID          int                 `json:"-"`
}

type ItemQuantity struct {
	ItemID   int    `json:"item_id" binding:"required"`
	Quantity *int   `json:"quantity"`
	Note     string `json:"note"`
}

// StepRequest carries one workflow step. Items without an entry keep their default
// quantity: approve defaults to the requested quantity and receive to the dispensed one.
type StepRequest struct {
	TransferID int            `json:"-"`
	Items      []ItemQuantity `json:"items"`
	Note       string         `json:"note"`
	ActorID    int            `json:"-"`
}

type TransferQuery struct {
	Status           string `form:"status"`
	FromDepartmentID *int   `form:"from_department_id"`
	ToDepartmentID   *int   `form:"to_department_id"`
	Limit            int    `form:"limit,default=50"`
	Offset           int    `form:"offset,default=0"`
}
