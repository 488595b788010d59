package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const unlimitedLiteral = "unlimited"

// StockLevel is the mirrored availability counter of a product or variant.
// It is one of Finite(n), Unlimited or Unset; the zero value is Unset.
//
// The two fields map onto the stock_count / stock_unlimited columns via
// gorm's embedded prefix. Unlimited wins when both are populated.
type StockLevel struct {
	Count     *int `gorm:"column:count"`
	Unlimited bool `gorm:"column:unlimited;not null;default:false"`
}

func FiniteStock(n int) StockLevel {
	if n < 0 {
		n = 0
	}
	return StockLevel{Count: &n}
}

func UnlimitedStock() StockLevel {
	return StockLevel{Unlimited: true}
}

func UnsetStock() StockLevel {
	return StockLevel{}
}

func (s StockLevel) IsUnlimited() bool { return s.Unlimited }

func (s StockLevel) IsUnset() bool { return !s.Unlimited && s.Count == nil }

func (s StockLevel) IsFinite() bool { return !s.Unlimited && s.Count != nil }

// Finite returns the count when the level is Finite.
func (s StockLevel) Finite() (int, bool) {
	if !s.IsFinite() {
		return 0, false
	}
	return *s.Count, true
}

// CanFulfil reports whether quantity units may be handed out against this level.
func (s StockLevel) CanFulfil(quantity int) bool {
	if s.Unlimited {
		return true
	}
	if s.Count == nil {
		return quantity <= 0
	}
	return *s.Count >= quantity
}

func (s StockLevel) Equal(other StockLevel) bool {
	if s.Unlimited || other.Unlimited {
		return s.Unlimited == other.Unlimited
	}
	if s.Count == nil || other.Count == nil {
		return s.Count == nil && other.Count == nil
	}
	return *s.Count == *other.Count
}

func (s StockLevel) String() string {
	switch {
	case s.Unlimited:
		return unlimitedLiteral
	case s.Count == nil:
		return "unset"
	default:
		return strconv.Itoa(*s.Count)
	}
}

// MarshalJSON renders a number, "unlimited" or null.
func (s StockLevel) MarshalJSON() ([]byte, error) {
	switch {
	case s.Unlimited:
		return json.Marshal(unlimitedLiteral)
	case s.Count == nil:
		return []byte("null"), nil
	default:
		return []byte(strconv.Itoa(*s.Count)), nil
	}
}

func (s *StockLevel) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = UnsetStock()
		return nil
	}
	if trimmed[0] == '"' {
		var literal string
		if err := json.Unmarshal(trimmed, &literal); err != nil {
			return err
		}
		if literal != unlimitedLiteral {
			return fmt.Errorf("stock level: unknown literal %q", literal)
		}
		*s = UnlimitedStock()
		return nil
	}
	n, err := strconv.Atoi(string(trimmed))
	if err != nil {
		return fmt.Errorf("stock level: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("stock level: negative count %d", n)
	}
	*s = FiniteStock(n)
	return nil
}
