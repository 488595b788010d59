package stock

import (
	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// SwitchDeliveryType returns the stock level after a delivery type change.
// Moving to manual always pins Unlimited; leaving manual drops Unlimited to a
// zero count so a restock or recount establishes the real number.
func SwitchDeliveryType(from, to enums.DeliveryType, current types.StockLevel) types.StockLevel {
	if from == to {
		return current
	}
	switch to {
	case enums.DeliveryManual:
		return types.UnlimitedStock()
	case enums.DeliveryAutomatic:
		if current.IsUnlimited() {
			return types.FiniteStock(0)
		}
	}
	return current
}

// InitialLevel is the stock of a freshly created product or variant.
func InitialLevel(delivery enums.DeliveryType) types.StockLevel {
	if delivery == enums.DeliveryManual {
		return types.UnlimitedStock()
	}
	return types.FiniteStock(0)
}

// levelAfterWrite mirrors the unused count after an assignment or restock.
func levelAfterWrite(delivery enums.DeliveryType, unused int64) types.StockLevel {
	if delivery == enums.DeliveryManual {
		return types.UnlimitedStock()
	}
	return types.FiniteStock(int(unused))
}

// levelAfterDelete mirrors the unused count after a bulk delete, where an empty
// pair reads as unset rather than zero.
func levelAfterDelete(delivery enums.DeliveryType, unused int64) types.StockLevel {
	if delivery == enums.DeliveryManual {
		return types.UnlimitedStock()
	}
	if unused == 0 {
		return types.UnsetStock()
	}
	return types.FiniteStock(int(unused))
}

// levelAfterRecount repairs drift without promoting an unset counter to zero.
func levelAfterRecount(delivery enums.DeliveryType, unused int64, current types.StockLevel) types.StockLevel {
	if delivery == enums.DeliveryManual {
		return types.UnlimitedStock()
	}
	if unused == 0 && current.IsUnset() {
		return current
	}
	return types.FiniteStock(int(unused))
}

// AggregateVariants folds variant counters into the product-level counter:
// unlimited if any variant is unlimited, unset if every variant is unset,
// otherwise the sum of the finite counts.
func AggregateVariants(levels []types.StockLevel) types.StockLevel {
	total := 0
	anyFinite := false
	for _, level := range levels {
		if level.IsUnlimited() {
			return types.UnlimitedStock()
		}
		if n, ok := level.Finite(); ok {
			total += n
			anyFinite = true
		}
	}
	if !anyFinite {
		return types.UnsetStock()
	}
	return types.FiniteStock(total)
}
