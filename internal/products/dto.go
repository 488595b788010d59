package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	Slug         string             `json:"slug"`
	DeliveryType enums.DeliveryType `json:"delivery_type"`
	Price        decimal.Decimal    `json:"price"`
	IsActive     bool               `json:"is_active"`
	Stock        types.StockLevel   `json:"stock"`
	Available    bool               `json:"available"`
	Version      int                `json:"version"`
	Variants     []VariantDTO       `json:"variants"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// VariantDTO exposes one variant with its effective delivery type.
type VariantDTO struct {
	ID               uuid.UUID           `json:"id"`
	Name             string              `json:"name"`
	DeliveryType     enums.DeliveryType  `json:"delivery_type"`
	DeliveryOverride *enums.DeliveryType `json:"delivery_override,omitempty"`
	Price            decimal.Decimal     `json:"price"`
	Stock            types.StockLevel    `json:"stock"`
	Available        bool                `json:"available"`
	Position         int                 `json:"position"`
}

// NewProductDTO maps the model onto the response payload.
func NewProductDTO(product *models.Product) *ProductDTO {
	dto := &ProductDTO{
		ID:           product.ID,
		Name:         product.Name,
		Slug:         product.Slug,
		DeliveryType: product.DeliveryType,
		Price:        product.Price,
		IsActive:     product.IsActive,
		Stock:        product.Stock,
		Available:    product.Stock.CanFulfil(1),
		Version:      product.Version,
		Variants:     make([]VariantDTO, 0, len(product.Variants)),
		CreatedAt:    product.CreatedAt,
		UpdatedAt:    product.UpdatedAt,
	}
	for _, v := range product.Variants {
		price := product.Price
		if v.Price != nil {
			price = *v.Price
		}
		dto.Variants = append(dto.Variants, VariantDTO{
			ID:               v.ID,
			Name:             v.Name,
			DeliveryType:     v.EffectiveDeliveryType(product.DeliveryType),
			DeliveryOverride: v.DeliveryType,
			Price:            price,
			Stock:            v.Stock,
			Available:        v.Stock.CanFulfil(1),
			Position:         v.Position,
		})
	}
	return dto
}
