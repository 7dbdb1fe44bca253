package metadata

import "fmt"

// TransactionKind classifies a ledger entry. Kinds are derived by the ledger, never taken
// from the caller.
type TransactionKind string

const (
	KindReceive          TransactionKind = "RECEIVE"
	KindDispense         TransactionKind = "DISPENSE"
	KindTransferOut      TransactionKind = "TRANSFER_OUT"
	KindTransferIn       TransactionKind = "TRANSFER_IN"
	KindAdjustIncrease   TransactionKind = "ADJUST_INCREASE"
	KindAdjustDecrease   TransactionKind = "ADJUST_DECREASE"
	KindMinStockIncrease TransactionKind = "MIN_STOCK_INCREASE"
	KindMinStockDecrease TransactionKind = "MIN_STOCK_DECREASE"
	KindDataUpdate       TransactionKind = "DATA_UPDATE"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionNeutral  Direction = "neutral"
)

func AllTransactionKinds() []TransactionKind {
	return []TransactionKind{
		KindReceive, KindDispense, KindTransferOut, KindTransferIn,
		KindAdjustIncrease, KindAdjustDecrease,
		KindMinStockIncrease, KindMinStockDecrease, KindDataUpdate,
	}
}

func NewTransactionKind(value string) (TransactionKind, error) {
	for _, kind := range AllTransactionKinds() {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind: %s", value)
}

func (k TransactionKind) Direction() Direction {
	switch k {
	case KindReceive, KindTransferIn, KindAdjustIncrease:
		return DirectionIncoming
	case KindDispense, KindTransferOut, KindAdjustDecrease:
		return DirectionOutgoing
	case KindMinStockIncrease, KindMinStockDecrease, KindDataUpdate:
		return DirectionNeutral
	default:
		panic(fmt.Sprintf("unhandled transaction kind %q", string(k)))
	}
}

// AffectsQuantity reports whether entries of this kind move the stock total.
func (k TransactionKind) AffectsQuantity() bool {
	return k.Direction() != DirectionNeutral
}

// SignedDelta is the change an entry of this kind with the recorded quantity applies to the
// stock total. Minimum-stock and data entries never move the total.
func (k TransactionKind) SignedDelta(quantity int) int {
	switch k.Direction() {
	case DirectionIncoming:
		return quantity
	case DirectionOutgoing:
		return -quantity
	default:
		return 0
	}
}

// DefaultReason is the fallback note stored when the caller gives none. The adjustment texts
// must stay byte-identical with historical records.
func (k TransactionKind) DefaultReason() string {
	switch k {
	case KindAdjustIncrease:
		return "ปรับเพิ่มสต็อก"
	case KindAdjustDecrease:
		return "ปรับลดสต็อก"
	case KindMinStockIncrease:
		return "ปรับเพิ่มขั้นต่ำ"
	case KindMinStockDecrease:
		return "ปรับลดขั้นต่ำ"
	case KindDataUpdate:
		return "อัพเดทข้อมูล"
	case KindReceive:
		return "รับยาเข้าคลัง"
	case KindDispense:
		return "จ่ายยา"
	case KindTransferOut:
		return "โอนยาออก"
	case KindTransferIn:
		return "รับโอนยา"
	default:
		panic(fmt.Sprintf("unhandled transaction kind %q", string(k)))
	}
}
