package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/internal/availability"
	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/outbox/payloads"
	"github.com/codeshop/codeshop-backend/pkg/pagination"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

const maxVariants = 50

// Service exposes product catalog management.
type Service interface {
	CreateProduct(ctx context.Context, actorID *uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, actorID *uuid.UUID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, params pagination.Params) (*pagination.CursorPage[ProductDTO], error)
	GetAvailability(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*availability.Entry, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name         string
	Slug         string
	DeliveryType enums.DeliveryType
	Price        decimal.Decimal
	IsActive     *bool
	Variants     []VariantInput
}

// VariantInput describes a variant created with its product.
type VariantInput struct {
	Name         string
	Price        *decimal.Decimal
	DeliveryType *enums.DeliveryType
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name         *string
	Price        *decimal.Decimal
	IsActive     *bool
	DeliveryType *enums.DeliveryType
	Variants     []VariantUpdateInput
}

// VariantUpdateInput mutates one existing variant. An empty DeliveryType
// clears the override so the variant follows the product again.
type VariantUpdateInput struct {
	ID           uuid.UUID
	Name         *string
	Price        *decimal.Decimal
	DeliveryType *string
}

type availabilityCache interface {
	Get(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*availability.Entry, bool, error)
	Set(ctx context.Context, entry availability.Entry) error
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	outbox   outbox.Emitter
	cache    availabilityCache
	logg     *logger.Logger
}

// NewService constructs a product service instance. The cache may be nil, in
// which case availability is read straight from the database.
func NewService(repo *Repository, dbClient *db.Client, emitter outbox.Emitter, cache availabilityCache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		outbox:   emitter,
		cache:    cache,
		logg:     logg,
	}, nil
}

// CreateProduct creates the product and its variants with stock initialised
// from the delivery type.
func (s *service) CreateProduct(ctx context.Context, actorID *uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.DeliveryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_type must be automatic or manual")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be zero or greater")
	}
	if len(input.Variants) > maxVariants {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d variants", maxVariants))
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug could not be derived from name")
	}

	product := &models.Product{
		Name:         name,
		Slug:         slug,
		DeliveryType: input.DeliveryType,
		Price:        input.Price,
		IsActive:     true,
		Version:      1,
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	for i, v := range input.Variants {
		variantName := strings.TrimSpace(v.Name)
		if variantName == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d].name is required", i))
		}
		if v.DeliveryType != nil && !v.DeliveryType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d].delivery_type is invalid", i))
		}
		if v.Price != nil && v.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d].price must be zero or greater", i))
		}
		variant := models.Variant{
			Name:         variantName,
			DeliveryType: v.DeliveryType,
			Price:        v.Price,
			Position:     i,
		}
		variant.Stock = stock.InitialLevel(variant.EffectiveDeliveryType(input.DeliveryType))
		product.Variants = append(product.Variants, variant)
	}
	product.Stock = productLevel(product)

	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).CreateProduct(ctx, product)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "slug already in use")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		variantIDs := make([]uuid.UUID, 0, len(created.Variants))
		for _, v := range created.Variants {
			variantIDs = append(variantIDs, v.ID)
		}
		return s.emit(ctx, tx, enums.EventProductCreated, created.ID, actorID, payloads.ProductCreatedEvent{
			ProductID:    created.ID,
			Slug:         created.Slug,
			DeliveryType: created.DeliveryType,
			VariantIDs:   variantIDs,
		})
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}

	logCtx := s.logg.WithProduct(ctx, product.ID.String(), nil)
	s.logg.Info(s.logg.WithField(logCtx, "delivery_type", product.DeliveryType), "product.created")
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct applies the mutation. Delivery type changes on the product
// cascade to variants without an override.
func (s *service) UpdateProduct(ctx context.Context, actorID *uuid.UUID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be blank")
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be zero or greater")
	}
	if input.DeliveryType != nil && !input.DeliveryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_type must be automatic or manual")
	}

	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := txRepo.LockByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock product")
		}

		previousEffective := make(map[uuid.UUID]enums.DeliveryType, len(product.Variants))
		for _, v := range product.Variants {
			previousEffective[v.ID] = v.EffectiveDeliveryType(product.DeliveryType)
		}

		if input.Name != nil {
			product.Name = strings.TrimSpace(*input.Name)
		}
		if input.Price != nil {
			product.Price = *input.Price
		}
		if input.IsActive != nil {
			product.IsActive = *input.IsActive
		}

		var changes []payloads.DeliveryTypeChangedEvent
		previousDelivery := product.DeliveryType
		if input.DeliveryType != nil {
			product.DeliveryType = *input.DeliveryType
		}

		touched := make(map[uuid.UUID]bool, len(input.Variants))
		for i, change := range input.Variants {
			variant := product.FindVariant(change.ID)
			if variant == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d] does not belong to product", i))
			}
			if err := applyVariantUpdate(variant, change, i); err != nil {
				return err
			}
			touched[variant.ID] = true
		}

		for i := range product.Variants {
			variant := &product.Variants[i]
			from := previousEffective[variant.ID]
			to := variant.EffectiveDeliveryType(product.DeliveryType)
			if from != to {
				variant.Stock = stock.SwitchDeliveryType(from, to, variant.Stock)
				touched[variant.ID] = true
				variantID := variant.ID
				changes = append(changes, payloads.DeliveryTypeChangedEvent{
					ProductID: product.ID,
					VariantID: &variantID,
					From:      from,
					To:        to,
					Stock:     variant.Stock,
				})
			}
			if touched[variant.ID] {
				if err := txRepo.SaveVariant(ctx, variant); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update variant")
				}
			}
		}

		if product.HasVariants() {
			product.Stock = productLevel(product)
		} else {
			product.Stock = stock.SwitchDeliveryType(previousDelivery, product.DeliveryType, product.Stock)
		}
		if previousDelivery != product.DeliveryType {
			product.StockOverriddenAt = nil
			changes = append(changes, payloads.DeliveryTypeChangedEvent{
				ProductID: product.ID,
				From:      previousDelivery,
				To:        product.DeliveryType,
				Stock:     product.Stock,
			})
		}

		if err := txRepo.SaveProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}
		for _, change := range changes {
			if err := s.emit(ctx, tx, enums.EventDeliveryTypeChanged, product.ID, actorID, change); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}

	s.invalidate(ctx, productID)
	s.logg.Info(s.logg.WithProduct(ctx, productID.String(), nil), "product.updated")
	return s.GetProduct(ctx, productID)
}

// GetProduct loads one product with its variants.
func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return NewProductDTO(product), nil
}

// ListProducts pages through active products.
func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*pagination.CursorPage[ProductDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListActive(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *NewProductDTO(&rows[i]))
	}
	return &pagination.CursorPage[ProductDTO]{Items: items, NextCursor: next}, nil
}

// GetAvailability reads through the availability cache.
func (s *service) GetAvailability(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*availability.Entry, error) {
	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, productID, variantID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "availability.cache_read_failed")
		} else if ok {
			return entry, nil
		}
	}

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	entry := availability.NewEntry(product.ID, nil, product.DeliveryType, product.Stock, product.Version)
	if variantID != nil {
		variant := product.FindVariant(*variantID)
		if variant == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		id := variant.ID
		entry = availability.NewEntry(product.ID, &id, variant.EffectiveDeliveryType(product.DeliveryType), variant.Stock, product.Version)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "availability.cache_write_failed")
		}
	}
	return &entry, nil
}

func applyVariantUpdate(variant *models.Variant, change VariantUpdateInput, index int) error {
	if change.Name != nil {
		name := strings.TrimSpace(*change.Name)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d].name must not be blank", index))
		}
		variant.Name = name
	}
	if change.Price != nil {
		if change.Price.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variants[%d].price must be zero or greater", index))
		}
		price := *change.Price
		variant.Price = &price
	}
	if change.DeliveryType != nil {
		if *change.DeliveryType == "" {
			variant.DeliveryType = nil
			return nil
		}
		delivery, err := enums.ParseDeliveryType(*change.DeliveryType)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("variants[%d].delivery_type is invalid", index))
		}
		variant.DeliveryType = &delivery
	}
	return nil
}

func productLevel(product *models.Product) types.StockLevel {
	if !product.HasVariants() {
		return stock.InitialLevel(product.DeliveryType)
	}
	levels := make([]types.StockLevel, 0, len(product.Variants))
	for _, v := range product.Variants {
		levels = append(levels, v.Stock)
	}
	return stock.AggregateVariants(levels)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, productID uuid.UUID, actorID *uuid.UUID, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Data:          data,
	}
	if actorID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorID, Role: string(enums.UserRoleAdmin)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) invalidate(ctx context.Context, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "availability.cache_invalidate_failed")
	}
}
