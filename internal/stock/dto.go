package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

// AssignInput hands quantity unused codes of a product to a user.
type AssignInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	UserID    uuid.UUID
	Quantity  int
	ActorID   *uuid.UUID
}

// AssignResult carries the codes handed out and the counter afterwards.
type AssignResult struct {
	ProductID    uuid.UUID        `json:"product_id"`
	VariantID    *uuid.UUID       `json:"variant_id,omitempty"`
	UserID       uuid.UUID        `json:"user_id"`
	Codes        []string         `json:"codes"`
	StockItemIDs []uuid.UUID      `json:"stock_item_ids"`
	Stock        types.StockLevel `json:"stock"`
}

// RestockInput uploads a batch of codes for one (product, variant) pair.
type RestockInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Codes     []string
	ActorID   *uuid.UUID
}

// RestockResult reports which codes were inserted.
type RestockResult struct {
	Added        int              `json:"added"`
	Skipped      int              `json:"skipped"`
	SkippedCodes []string         `json:"skipped_codes,omitempty"`
	CurrentStock types.StockLevel `json:"current_stock"`
}

// DeleteInput removes stock items by id.
type DeleteInput struct {
	IDs     []uuid.UUID
	ActorID *uuid.UUID
}

// CounterDTO is one recomputed (product, variant) counter.
type CounterDTO struct {
	ProductID uuid.UUID        `json:"product_id"`
	VariantID *uuid.UUID       `json:"variant_id"`
	Stock     types.StockLevel `json:"stock"`
}

// DeleteResult reports the deleted rows and the counters they touched.
type DeleteResult struct {
	Deleted    int          `json:"deleted"`
	Recomputed []CounterDTO `json:"recomputed"`
}

// OverrideInput sets a variant-less product counter directly.
type OverrideInput struct {
	ProductID uuid.UUID
	Stock     int
	ActorID   *uuid.UUID
}

// OverrideResult reports the counter before and after the override.
type OverrideResult struct {
	ProductID uuid.UUID        `json:"product_id"`
	Previous  types.StockLevel `json:"previous"`
	Stock     types.StockLevel `json:"stock"`
	Version   int              `json:"version"`
}

// RecountResult lists every counter of a product after a recount.
type RecountResult struct {
	ProductID uuid.UUID `json:"product_id"`
	Changed   bool      `json:"changed"`
	// Overridden is set when a reconcile pass left an admin override in place.
	Overridden bool         `json:"overridden,omitempty"`
	Counters   []CounterDTO `json:"counters"`
}

// ReconcileSummary aggregates a full catalog recount.
type ReconcileSummary struct {
	Scanned    int `json:"scanned"`
	Corrected  int `json:"corrected"`
	Overridden int `json:"overridden"`
	Failed     int `json:"failed"`
}

// StockItemDTO is the admin view of one code.
type StockItemDTO struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id"`
	Code       string     `json:"code"`
	IsUsed     bool       `json:"is_used"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	AssignedAt *time.Time `json:"assigned_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AssignmentDTO is one hand-out history row.
type AssignmentDTO struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id"`
	StockItemID *uuid.UUID `json:"stock_item_id"`
	Code        string     `json:"code"`
	AssignedBy  *uuid.UUID `json:"assigned_by"`
	AssignedAt  time.Time  `json:"assigned_at"`
}

func newStockItemDTO(item models.StockItem) StockItemDTO {
	return StockItemDTO{
		ID:         item.ID,
		ProductID:  item.ProductID,
		VariantID:  item.VariantID,
		Code:       item.Code,
		IsUsed:     item.IsUsed,
		AssignedTo: item.AssignedTo,
		AssignedAt: item.AssignedAt,
		CreatedAt:  item.CreatedAt,
	}
}

func newAssignmentDTO(row models.StockAssignment) AssignmentDTO {
	return AssignmentDTO{
		ID:          row.ID,
		UserID:      row.UserID,
		ProductID:   row.ProductID,
		VariantID:   row.VariantID,
		StockItemID: row.StockItemID,
		Code:        row.Code,
		AssignedBy:  row.AssignedBy,
		AssignedAt:  row.AssignedAt,
	}
}
