package product

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/internal/availability"
	"github.com/codeshop/codeshop-backend/pkg/db/dbtest"
	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/pagination"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

type memoryCache struct {
	entries     map[string]availability.Entry
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]availability.Entry{}}
}

func cacheKey(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil {
		return productID.String()
	}
	return productID.String() + "/" + variantID.String()
}

func (m *memoryCache) Get(_ context.Context, productID uuid.UUID, variantID *uuid.UUID) (*availability.Entry, bool, error) {
	entry, ok := m.entries[cacheKey(productID, variantID)]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (m *memoryCache) Set(_ context.Context, entry availability.Entry) error {
	m.entries[cacheKey(entry.ProductID, entry.VariantID)] = entry
	return nil
}

func (m *memoryCache) Invalidate(_ context.Context, productID uuid.UUID) error {
	m.invalidated++
	for key, entry := range m.entries {
		if entry.ProductID == productID {
			delete(m.entries, key)
		}
	}
	return nil
}

func newTestService(t *testing.T) (Service, *gorm.DB, *memoryCache) {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "product-test", Output: io.Discard})
	cache := newMemoryCache()
	svc, err := NewService(NewRepository(client.DB()), client, outbox.NewService(outbox.NewRepository(client.DB()), logg), cache, logg)
	require.NoError(t, err)
	return svc, client.DB(), cache
}

func deliveryPtr(d enums.DeliveryType) *enums.DeliveryType { return &d }

func strPtr(s string) *string { return &s }

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestCreateProductInitialisesStockFromDeliveryType(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	manual, err := svc.CreateProduct(ctx, nil, CreateProductInput{Name: "Support Plan", DeliveryType: enums.DeliveryManual, Price: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, "support-plan", manual.Slug)
	assert.True(t, manual.Stock.IsUnlimited())
	assert.True(t, manual.Available)

	keys, err := svc.CreateProduct(ctx, nil, CreateProductInput{
		Name:         "Game Key",
		DeliveryType: enums.DeliveryAutomatic,
		Price:        decimal.RequireFromString("19.99"),
		Variants: []VariantInput{
			{Name: "EU"},
			{Name: "Gift", DeliveryType: deliveryPtr(enums.DeliveryManual)},
		},
	})
	require.NoError(t, err)
	require.Len(t, keys.Variants, 2)
	assert.True(t, keys.Variants[0].Stock.Equal(types.FiniteStock(0)))
	assert.False(t, keys.Variants[0].Available)
	assert.True(t, keys.Variants[1].Stock.IsUnlimited())
	assert.Equal(t, enums.DeliveryManual, keys.Variants[1].DeliveryType)
	assert.True(t, keys.Stock.IsUnlimited())

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventProductCreated).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, nil, CreateProductInput{Name: " ", DeliveryType: enums.DeliveryManual})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateProduct(ctx, nil, CreateProductInput{Name: "X", DeliveryType: "instant"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateProduct(ctx, nil, CreateProductInput{Name: "X", DeliveryType: enums.DeliveryManual, Price: decimal.NewFromInt(-1)})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateProduct(ctx, nil, CreateProductInput{Name: "Dup", DeliveryType: enums.DeliveryManual})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, nil, CreateProductInput{Name: "Other", Slug: "dup", DeliveryType: enums.DeliveryManual})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestUpdateProductSwitchesDeliveryType(t *testing.T) {
	svc, conn, cache := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, nil, CreateProductInput{Name: "Key", DeliveryType: enums.DeliveryManual})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{DeliveryType: deliveryPtr(enums.DeliveryAutomatic)})
	require.NoError(t, err)
	assert.True(t, updated.Stock.Equal(types.FiniteStock(0)))
	assert.Equal(t, created.Version+1, updated.Version)

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", created.ID).Update("stock_count", 5).Error)
	updated, err = svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{DeliveryType: deliveryPtr(enums.DeliveryManual)})
	require.NoError(t, err)
	assert.True(t, updated.Stock.IsUnlimited())

	renamed, err := svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{Name: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.True(t, renamed.Stock.IsUnlimited())

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventDeliveryTypeChanged).Count(&events).Error)
	assert.EqualValues(t, 2, events)
	assert.Equal(t, 3, cache.invalidated)
}

func TestUpdateProductCascadesToVariantsWithoutOverride(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, nil, CreateProductInput{
		Name:         "Bundle",
		DeliveryType: enums.DeliveryAutomatic,
		Variants: []VariantInput{
			{Name: "Follows"},
			{Name: "Pinned", DeliveryType: deliveryPtr(enums.DeliveryAutomatic)},
		},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{DeliveryType: deliveryPtr(enums.DeliveryManual)})
	require.NoError(t, err)
	assert.True(t, updated.Variants[0].Stock.IsUnlimited())
	assert.True(t, updated.Variants[1].Stock.Equal(types.FiniteStock(0)))
	assert.True(t, updated.Stock.IsUnlimited())

	cleared, err := svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{
		DeliveryType: deliveryPtr(enums.DeliveryAutomatic),
		Variants:     []VariantUpdateInput{{ID: created.Variants[1].ID, DeliveryType: strPtr("manual")}},
	})
	require.NoError(t, err)
	assert.True(t, cleared.Variants[0].Stock.Equal(types.FiniteStock(0)))
	assert.True(t, cleared.Variants[1].Stock.IsUnlimited())

	reverted, err := svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{
		Variants: []VariantUpdateInput{{ID: created.Variants[1].ID, DeliveryType: strPtr("")}},
	})
	require.NoError(t, err)
	assert.Nil(t, reverted.Variants[1].DeliveryOverride)
	assert.True(t, reverted.Variants[1].Stock.Equal(types.FiniteStock(0)))
	assert.True(t, reverted.Stock.Equal(types.FiniteStock(0)))

	_, err = svc.UpdateProduct(ctx, nil, created.ID, UpdateProductInput{
		Variants: []VariantUpdateInput{{ID: uuid.New(), Name: strPtr("ghost")}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.UpdateProduct(ctx, nil, uuid.New(), UpdateProductInput{Name: strPtr("missing")})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetAvailabilityReadsThroughCache(t *testing.T) {
	svc, conn, cache := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, nil, CreateProductInput{
		Name:         "Cached",
		DeliveryType: enums.DeliveryAutomatic,
		Variants:     []VariantInput{{Name: "Only"}},
	})
	require.NoError(t, err)
	variantID := created.Variants[0].ID

	entry, err := svc.GetAvailability(ctx, created.ID, &variantID)
	require.NoError(t, err)
	assert.False(t, entry.Available)
	assert.Len(t, cache.entries, 1)

	require.NoError(t, conn.Model(&models.Variant{}).Where("id = ?", variantID).Update("stock_count", 4).Error)
	stale, err := svc.GetAvailability(ctx, created.ID, &variantID)
	require.NoError(t, err)
	assert.False(t, stale.Available)

	require.NoError(t, cache.Invalidate(ctx, created.ID))
	fresh, err := svc.GetAvailability(ctx, created.ID, &variantID)
	require.NoError(t, err)
	assert.True(t, fresh.Available)
	assert.True(t, fresh.Stock.Equal(types.FiniteStock(4)))

	missing := uuid.New()
	_, err = svc.GetAvailability(ctx, created.ID, &missing)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestListProductsPagesActiveProducts(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, active := range []bool{true, true, false, true} {
		product := models.Product{
			Name:         "P",
			Slug:         uuid.NewString(),
			DeliveryType: enums.DeliveryManual,
			Stock:        types.UnlimitedStock(),
			IsActive:     active,
			Version:      1,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, conn.Create(&product).Error)
	}

	first, err := svc.ListProducts(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt))

	second, err := svc.ListProducts(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	_, err = svc.ListProducts(ctx, pagination.Params{Cursor: "%%%"})
	assertCode(t, err, pkgerrors.CodeValidation)
}
