package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// Product is a catalog listing whose stock mirrors its unused codes.
type Product struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name              string             `gorm:"column:name;not null"`
	Slug              string             `gorm:"column:slug;not null;uniqueIndex:ux_products_slug"`
	DeliveryType      enums.DeliveryType `gorm:"column:delivery_type;type:text;not null"`
	Stock             types.StockLevel   `gorm:"embedded;embeddedPrefix:stock_"`
	// StockOverriddenAt is set while the counter holds an admin override and
	// cleared by the next code-driven write.
	StockOverriddenAt *time.Time         `gorm:"column:stock_overridden_at"`
	Price             decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	IsActive          bool               `gorm:"column:is_active;not null"`
	Version           int                `gorm:"column:version;not null"`
	Variants          []Variant          `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasVariants reports whether stock is tracked per variant.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// HasStockOverride reports whether the counter was set by hand and not yet
// replaced by a code-driven recount.
func (p Product) HasStockOverride() bool {
	return p.StockOverriddenAt != nil
}

// FindVariant returns the loaded variant with the given id.
func (p *Product) FindVariant(id uuid.UUID) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}
