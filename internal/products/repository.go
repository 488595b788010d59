package product

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/pagination"
)

// Repository wraps product catalog persistence.
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

// CreateProduct inserts the product together with its variants.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// FindByID loads a product with its variants ordered by position.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockByID loads the product FOR UPDATE; stock writers take the same lock.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", id).
		Order("position ASC").
		Order("created_at ASC").
		Find(&product.Variants).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// SaveProduct persists the mutable product columns and bumps the version.
func (r *Repository) SaveProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":                product.Name,
			"price":               product.Price,
			"is_active":           product.IsActive,
			"delivery_type":       product.DeliveryType,
			"stock_count":         product.Stock.Count,
			"stock_unlimited":     product.Stock.Unlimited,
			"stock_overridden_at": product.StockOverriddenAt,
			"version":             gorm.Expr("version + ?", 1),
		}).Error
}

// SaveVariant persists the mutable variant columns.
func (r *Repository) SaveVariant(ctx context.Context, variant *models.Variant) error {
	return r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variant.ID).
		Updates(map[string]any{
			"name":            variant.Name,
			"price":           variant.Price,
			"delivery_type":   variant.DeliveryType,
			"stock_count":     variant.Stock.Count,
			"stock_unlimited": variant.Stock.Unlimited,
		}).Error
}

// ListActive pages through active products newest first.
func (r *Repository) ListActive(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	qb := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("is_active = ?", true)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Product
	if err := qb.
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, more := pagination.Trim(rows, params.Limit)
	if !more {
		return rows, "", nil
	}
	last := rows[len(rows)-1]
	return rows, pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}), nil
}
