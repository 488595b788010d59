package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/pagination"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

const (
	insertBatchSize = 500
	lookupChunkSize = 1000
)

// ItemFilter narrows the stock listing.
type ItemFilter struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	IsUsed    *bool
}

// AssignmentFilter narrows the assignment history.
type AssignmentFilter struct {
	UserID    *uuid.UUID
	ProductID *uuid.UUID
}

// Repository wraps stock catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// LockProduct loads the product row FOR UPDATE together with its variants.
// Writers on the same product serialize on this lock.
func (r *Repository) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// FindProduct loads the product and its variants without locking.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) loadVariants(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Where("product_id = ?", product.ID).
		Order("position ASC").
		Order("created_at ASC").
		Find(&product.Variants).Error
}

// UserExists reports whether an active user with the id exists.
func (r *Repository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}

// SelectUnused picks up to limit unused items for the pair, oldest first. On
// Postgres rows locked by another transaction are skipped.
func (r *Repository) SelectUnused(ctx context.Context, productID, variantKey uuid.UUID, limit int) ([]models.StockItem, error) {
	var items []models.StockItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("product_id = ? AND variant_key = ? AND is_used = ?", productID, variantKey, false).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ClaimItems flips the items to used. Only rows that are still unused change,
// so the affected count tells the caller whether it lost a race.
func (r *Repository) ClaimItems(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id IN ? AND is_used = ?", ids, false).
		Updates(map[string]any{
			"is_used":     true,
			"assigned_to": userID,
			"assigned_at": at,
		})
	return res.RowsAffected, res.Error
}

// InsertAssignments records the hand-out history.
func (r *Repository) InsertAssignments(ctx context.Context, rows []models.StockAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error
}

// CountUnused counts the unused items of one pair.
func (r *Repository) CountUnused(ctx context.Context, productID, variantKey uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("product_id = ? AND variant_key = ? AND is_used = ?", productID, variantKey, false).
		Count(&count).Error
	return count, err
}

type unusedRow struct {
	VariantKey uuid.UUID
	Total      int64
}

// CountUnusedByVariant returns unused counts of every pair of the product keyed
// by variant key. Pairs without unused items are absent.
func (r *Repository) CountUnusedByVariant(ctx context.Context, productID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []unusedRow
	if err := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Select("variant_key, COUNT(*) AS total").
		Where("product_id = ? AND is_used = ?", productID, false).
		Group("variant_key").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.VariantKey] = row.Total
	}
	return counts, nil
}

func stockColumns(level types.StockLevel) map[string]any {
	return map[string]any{
		"stock_count":     level.Count,
		"stock_unlimited": level.Unlimited,
	}
}

// SetProductStock writes the product-level counter.
func (r *Repository) SetProductStock(ctx context.Context, productID uuid.UUID, level types.StockLevel) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(stockColumns(level)).Error
}

// OverrideProductStock writes the product counter and marks it as overridden.
func (r *Repository) OverrideProductStock(ctx context.Context, productID uuid.UUID, level types.StockLevel, at time.Time) error {
	columns := stockColumns(level)
	columns["stock_overridden_at"] = at
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(columns).Error
}

// ClearStockOverride hands the product counter back to the unused code count.
func (r *Repository) ClearStockOverride(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_overridden_at", nil).Error
}

// SetVariantStock writes one variant counter.
func (r *Repository) SetVariantStock(ctx context.Context, variantID uuid.UUID, level types.StockLevel) error {
	return r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variantID).
		Updates(stockColumns(level)).Error
}

// BumpVersion increments the product version read by optimistic clients.
func (r *Repository) BumpVersion(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("version", gorm.Expr("version + ?", 1)).Error
}

// ExistingCodes returns which of the codes already exist for the pair.
func (r *Repository) ExistingCodes(ctx context.Context, productID, variantKey uuid.UUID, codes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(codes); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(codes) {
			end = len(codes)
		}
		var found []string
		if err := r.db.WithContext(ctx).
			Model(&models.StockItem{}).
			Where("product_id = ? AND variant_key = ? AND code IN ?", productID, variantKey, codes[start:end]).
			Pluck("code", &found).Error; err != nil {
			return nil, err
		}
		for _, code := range found {
			existing[code] = struct{}{}
		}
	}
	return existing, nil
}

// InsertItems inserts the items, silently skipping codes that collide with the
// unique index. It returns how many rows were actually inserted.
func (r *Repository) InsertItems(ctx context.Context, items []models.StockItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&items, insertBatchSize)
	return res.RowsAffected, res.Error
}

// FindItemsByIDs loads the items with the given ids.
func (r *Repository) FindItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.StockItem, error) {
	var items []models.StockItem
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// DeleteItems physically removes the items.
func (r *Repository) DeleteItems(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.StockItem{})
	return res.RowsAffected, res.Error
}

// ListItems returns a page of items, newest first, and the total match count.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter, page pagination.PageParams) ([]models.StockItem, int64, error) {
	page = page.Normalize()
	query := r.db.WithContext(ctx).Model(&models.StockItem{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.VariantID != nil {
		query = query.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.IsUsed != nil {
		query = query.Where("is_used = ?", *filter.IsUsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.StockItem
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAssignments returns a page of assignment history, newest first.
func (r *Repository) ListAssignments(ctx context.Context, filter AssignmentFilter, page pagination.PageParams) ([]models.StockAssignment, int64, error) {
	page = page.Normalize()
	query := r.db.WithContext(ctx).Model(&models.StockAssignment{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.StockAssignment
	if err := query.
		Order("assigned_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListProductIDs pages through product ids in id order for batch jobs.
func (r *Repository) ListProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
