package payloads

import (
	"github.com/google/uuid"

	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// StockCounter is the stock level of one (product, variant) pair after a mutation.
type StockCounter struct {
	ProductID uuid.UUID        `json:"product_id"`
	VariantID *uuid.UUID       `json:"variant_id,omitempty"`
	Stock     types.StockLevel `json:"stock"`
}

// StockAssignedEvent is emitted when codes are handed to a user.
type StockAssignedEvent struct {
	ProductID    uuid.UUID        `json:"product_id"`
	VariantID    *uuid.UUID       `json:"variant_id,omitempty"`
	UserID       uuid.UUID        `json:"user_id"`
	Quantity     int              `json:"quantity"`
	StockItemIDs []uuid.UUID      `json:"stock_item_ids"`
	Stock        types.StockLevel `json:"stock"`
}

// StockRestockedEvent is emitted after a batch of codes is uploaded.
type StockRestockedEvent struct {
	ProductID uuid.UUID        `json:"product_id"`
	VariantID *uuid.UUID       `json:"variant_id,omitempty"`
	Added     int              `json:"added"`
	Skipped   int              `json:"skipped"`
	Stock     types.StockLevel `json:"stock"`
}

// StockDeletedEvent is emitted per product touched by a bulk delete.
type StockDeletedEvent struct {
	ProductID uuid.UUID      `json:"product_id"`
	Deleted   int            `json:"deleted"`
	Counters  []StockCounter `json:"counters"`
}

// StockOverriddenEvent is emitted when an admin sets a product counter directly.
type StockOverriddenEvent struct {
	ProductID uuid.UUID        `json:"product_id"`
	Previous  types.StockLevel `json:"previous"`
	Stock     types.StockLevel `json:"stock"`
}

// StockRecountedEvent is emitted when a recount changed at least one counter.
type StockRecountedEvent struct {
	ProductID uuid.UUID      `json:"product_id"`
	Counters  []StockCounter `json:"counters"`
}

// DeliveryTypeChangedEvent is emitted when a product or variant delivery type flips.
type DeliveryTypeChangedEvent struct {
	ProductID uuid.UUID          `json:"product_id"`
	VariantID *uuid.UUID         `json:"variant_id,omitempty"`
	From      enums.DeliveryType `json:"from"`
	To        enums.DeliveryType `json:"to"`
	Stock     types.StockLevel   `json:"stock"`
}

// ProductCreatedEvent announces a new catalog listing.
type ProductCreatedEvent struct {
	ProductID    uuid.UUID          `json:"product_id"`
	Slug         string             `json:"slug"`
	DeliveryType enums.DeliveryType `json:"delivery_type"`
	VariantIDs   []uuid.UUID        `json:"variant_ids,omitempty"`
}
