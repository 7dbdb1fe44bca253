package ledger

import "substock/pkg/metadata"

type Classification struct {
	Kind                metadata.TransactionKind
	Quantity            int
	QuantityChanged     bool
	MinimumStockChanged bool
}

// Classify derives the ledger kind for an adjustment from the two deltas it observes.
// A quantity change wins over a minimum-stock change; when neither moved the entry is a
// DATA_UPDATE with quantity 0. Minimum-stock quantities keep their sign.
func Classify(beforeQty, afterQty, beforeMin, afterMin int) Classification {
	quantityDelta := afterQty - beforeQty
	minStockDelta := afterMin - beforeMin

	c := Classification{
		QuantityChanged:     quantityDelta != 0,
		MinimumStockChanged: minStockDelta != 0,
	}

	switch {
	case quantityDelta > 0:
		c.Kind = metadata.KindAdjustIncrease
		c.Quantity = quantityDelta
	case quantityDelta < 0:
		c.Kind = metadata.KindAdjustDecrease
		c.Quantity = -quantityDelta
	case minStockDelta > 0:
		c.Kind = metadata.KindMinStockIncrease
		c.Quantity = minStockDelta
	case minStockDelta < 0:
		c.Kind = metadata.KindMinStockDecrease
		c.Quantity = minStockDelta
	default:
		c.Kind = metadata.KindDataUpdate
	}

	return c
}

func (c Classification) Reason(given string) string {
	if given != "" {
		return given
	}
	return c.Kind.DefaultReason()
}
