package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockItem is one serialized code in the stock catalog.
type StockItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_items_code,priority:1;index:ix_stock_items_unused,priority:1"`
	VariantID *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	// VariantKey is VariantID or uuid.Nil so the code index covers variant-less products.
	VariantKey uuid.UUID  `gorm:"column:variant_key;type:uuid;not null;uniqueIndex:ux_stock_items_code,priority:2;index:ix_stock_items_unused,priority:2"`
	Code       string     `gorm:"column:code;not null;uniqueIndex:ux_stock_items_code,priority:3"`
	IsUsed     bool       `gorm:"column:is_used;not null;index:ix_stock_items_unused,priority:3"`
	AssignedTo *uuid.UUID `gorm:"column:assigned_to;type:uuid"`
	AssignedAt *time.Time `gorm:"column:assigned_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockItem) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.VariantKey = VariantKey(s.VariantID)
	return nil
}

// VariantKey maps an optional variant id onto the non-null index column.
func VariantKey(variantID *uuid.UUID) uuid.UUID {
	if variantID == nil {
		return uuid.Nil
	}
	return *variantID
}
