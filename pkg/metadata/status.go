package metadata

import "fmt"

type TransferStatus string

const (
	StatusPending   TransferStatus = "PENDING"
	StatusApproved  TransferStatus = "APPROVED"
	StatusPrepared  TransferStatus = "PREPARED"
	StatusDelivered TransferStatus = "DELIVERED"
	StatusPartial   TransferStatus = "PARTIAL"
	StatusCancelled TransferStatus = "CANCELLED"
)

// TransferAction is a workflow step requested by an actor.
type TransferAction string

const (
	ActionApprove  TransferAction = "approve"
	ActionDispense TransferAction = "dispense"
	ActionReceive  TransferAction = "receive"
	ActionCancel   TransferAction = "cancel"
)

func AllTransferStatuses() []TransferStatus {
	return []TransferStatus{StatusPending, StatusApproved, StatusPrepared, StatusDelivered, StatusPartial, StatusCancelled}
}

func NewTransferStatus(value string) (TransferStatus, error) {
	status := TransferStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid transfer status: %s", value)
	}
	return status, nil
}

func (s TransferStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPrepared, StatusDelivered, StatusPartial, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusPartial, StatusCancelled:
		return true
	case StatusPending, StatusApproved, StatusPrepared:
		return false
	default:
		panic(fmt.Sprintf("unhandled transfer status %q", string(s)))
	}
}

// Targets lists the statuses an action may lead to from s. Receive is the only action
// with two outcomes; the item quantities decide between them.
func (s TransferStatus) Targets(action TransferAction) []TransferStatus {
	switch s {
	case StatusPending:
		switch action {
		case ActionApprove:
			return []TransferStatus{StatusApproved}
		case ActionCancel:
			return []TransferStatus{StatusCancelled}
		}
	case StatusApproved:
		switch action {
		case ActionDispense:
			return []TransferStatus{StatusPrepared}
		case ActionCancel:
			return []TransferStatus{StatusCancelled}
		}
	case StatusPrepared:
		if action == ActionReceive {
			return []TransferStatus{StatusDelivered, StatusPartial}
		}
	case StatusDelivered, StatusPartial, StatusCancelled:
	default:
		panic(fmt.Sprintf("unhandled transfer status %q", string(s)))
	}
	return nil
}

func (s TransferStatus) CanTransitionTo(target TransferStatus) bool {
	for _, action := range []TransferAction{ActionApprove, ActionDispense, ActionReceive, ActionCancel} {
		for _, candidate := range s.Targets(action) {
			if candidate == target {
				return true
			}
		}
	}
	return false
}

// Label is the Thai badge text shown by the UI layer.
func (s TransferStatus) Label() string {
	switch s {
	case StatusPending:
		return "รออนุมัติ"
	case StatusApproved:
		return "อนุมัติแล้ว"
	case StatusPrepared:
		return "จัดเตรียมแล้ว"
	case StatusDelivered:
		return "รับของแล้ว"
	case StatusPartial:
		return "รับไม่ครบ"
	case StatusCancelled:
		return "ยกเลิก"
	default:
		panic(fmt.Sprintf("unhandled transfer status %q", string(s)))
	}
}
