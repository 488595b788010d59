package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockAssignment records a code handed to a user. Code is a snapshot so the
// history survives a later bulk delete of the stock item.
type StockAssignment struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index:ix_stock_assignments_user"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index:ix_stock_assignments_product"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	StockItemID *uuid.UUID `gorm:"column:stock_item_id;type:uuid"`
	Code        string     `gorm:"column:code;not null"`
	AssignedBy  *uuid.UUID `gorm:"column:assigned_by;type:uuid"`
	AssignedAt  time.Time  `gorm:"column:assigned_at;not null"`
}

func (a *StockAssignment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	return nil
}
