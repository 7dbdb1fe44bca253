package models

import (
	"substock/pkg/metadata"
	"time"

	"github.com/shopspring/decimal"
)

type Transfer struct {
	ID                 int                     `json:"id" db:"id"`
	RequisitionNumber  string                  `json:"requisition_number" db:"requisition_number"`
	FromDepartmentID   int                     `json:"from_department_id" db:"from_department_id"`
	ToDepartmentID     int                     `json:"to_department_id" db:"to_department_id"`
	Status             metadata.TransferStatus `json:"status" db:"status"`
	RequestedBy        int                     `json:"requested_by" db:"requested_by"`
	ApprovedBy         *int                    `json:"approved_by,omitempty" db:"approved_by"`
	DispensedBy        *int                    `json:"dispensed_by,omitempty" db:"dispensed_by"`
	ReceivedBy         *int                    `json:"received_by,omitempty" db:"received_by"`
	CancelledBy        *int                    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	RequestedAt        time.Time               `json:"requested_at" db:"requested_at"`
	ApprovedAt         *time.Time              `json:"approved_at,omitempty" db:"approved_at"`
	DispensedAt        *time.Time              `json:"dispensed_at,omitempty" db:"dispensed_at"`
	ReceivedAt         *time.Time              `json:"received_at,omitempty" db:"received_at"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty" db:"cancelled_at"`
	Purpose            string                  `json:"purpose" db:"purpose"`
	ApprovalNote       string                  `json:"approval_note" db:"approval_note"`
	DispenseNote       string                  `json:"dispense_note" db:"dispense_note"`
	ReceiveNote        string                  `json:"receive_note" db:"receive_note"`
	CancellationNote   string                  `json:"cancellation_note" db:"cancellation_note"`
	Version            int                     `json:"version" db:"version"`
	Items              []TransferItem          `json:"items" db:"-"`
	TotalItems         int                     `json:"total_items" db:"-"`
	TotalValue         decimal.Decimal         `json:"total_value" db:"-"`
	FromDepartmentName string                  `json:"from_department_name,omitempty" db:"from_department_name"`
	ToDepartmentName   string                  `json:"to_department_name,omitempty" db:"to_department_name"`
}

// Summarize recomputes the derived totals from the item list.
func (t *Transfer) Summarize() {
	t.TotalItems = len(t.Items)
	total := decimal.Zero
	for i := range t.Items {
		t.Items[i].Summarize()
		total = total.Add(t.Items[i].Value)
	}
	t.TotalValue = total
}

// LastStageAt is the timestamp of the latest workflow stage reached so far.
func (t *Transfer) LastStageAt() time.Time {
	last := t.RequestedAt
	for _, at := range []*time.Time{t.ApprovedAt, t.DispensedAt, t.ReceivedAt, t.CancelledAt} {
		if at != nil && at.After(last) {
			last = *at
		}
	}
	return last
}

func (t *Transfer) Item(itemID int) *TransferItem {
	for i := range t.Items {
		if t.Items[i].ID == itemID {
			return &t.Items[i]
		}
	}
	return nil
}

func (t *Transfer) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   t.ID,
		ResourceType: AuditResourceTransfer,
	}
}

// TransferStep is one entry of the actor/timestamp trail shown in the workflow view.
type TransferStep struct {
	Stage   metadata.TransferStatus `json:"stage"`
	Label   string                  `json:"label"`
	ActorID *int                    `json:"actor_id,omitempty"`
	At      *time.Time              `json:"at,omitempty"`
	Note    string                  `json:"note,omitempty"`
	Reached bool                    `json:"reached"`
}

type TransferDetail struct {
	Transfer
	Trail []TransferStep `json:"trail"`
}

type TransferFilter struct {
	Status           *metadata.TransferStatus
	FromDepartmentID *int
	ToDepartmentID   *int
	Limit            int
	Offset           int
}
