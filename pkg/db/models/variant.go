package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// Variant is a purchasable option of a product with its own stock counter.
type Variant struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index:ix_product_variants_product"`
	Name         string              `gorm:"column:name;not null"`
	DeliveryType *enums.DeliveryType `gorm:"column:delivery_type;type:text"`
	Stock        types.StockLevel    `gorm:"embedded;embeddedPrefix:stock_"`
	Price        *decimal.Decimal    `gorm:"column:price;type:numeric(12,2)"`
	Position     int                 `gorm:"column:position;not null"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Variant) TableName() string {
	return "product_variants"
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// EffectiveDeliveryType applies the variant override over the product default.
func (v Variant) EffectiveDeliveryType(parent enums.DeliveryType) enums.DeliveryType {
	if v.DeliveryType != nil && v.DeliveryType.IsValid() {
		return *v.DeliveryType
	}
	return parent
}
