package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

type fakeStore struct {
	hashes map[string]map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: map[string]map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) AvailabilityKey(productID string) string { return "cs:availability:" + productID }

func (f *fakeStore) HGet(_ context.Context, key, field string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.hashes[key][field]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) HSetWithTTL(_ context.Context, key, field string, value any, ttl time.Duration) error {
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	switch v := value.(type) {
	case []byte:
		f.hashes[key][field] = string(v)
	case string:
		f.hashes[key][field] = v
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return nil
}

func TestCacheRoundTripPerVariant(t *testing.T) {
	store := newFakeStore()
	cache, err := NewCache(store, 0)
	require.NoError(t, err)
	ctx := context.Background()

	productID := uuid.New()
	variantID := uuid.New()

	entry, ok, err := cache.Get(ctx, productID, &variantID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)

	require.NoError(t, cache.Set(ctx, NewEntry(productID, &variantID, enums.DeliveryAutomatic, types.FiniteStock(2), 4)))
	require.NoError(t, cache.Set(ctx, NewEntry(productID, nil, enums.DeliveryAutomatic, types.FiniteStock(0), 4)))
	assert.Equal(t, DefaultTTL, store.ttls["cs:availability:"+productID.String()])

	got, ok, err := cache.Get(ctx, productID, &variantID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Available)
	assert.True(t, got.Stock.Equal(types.FiniteStock(2)))
	assert.Equal(t, 4, got.Version)

	got, ok, err = cache.Get(ctx, productID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Available)

	require.NoError(t, cache.Invalidate(ctx, productID))
	_, ok, err = cache.Get(ctx, productID, &variantID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewEntryAvailability(t *testing.T) {
	id := uuid.New()
	assert.True(t, NewEntry(id, nil, enums.DeliveryManual, types.UnlimitedStock(), 1).Available)
	assert.False(t, NewEntry(id, nil, enums.DeliveryAutomatic, types.UnsetStock(), 1).Available)
}

func TestCacheCorruptFieldIsMiss(t *testing.T) {
	store := newFakeStore()
	cache, err := NewCache(store, time.Minute)
	require.NoError(t, err)
	productID := uuid.New()
	store.hashes["cs:availability:"+productID.String()] = map[string]string{"_": "{not json"}

	_, ok, err := cache.Get(context.Background(), productID, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheSurfacesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	cache, err := NewCache(store, time.Minute)
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), uuid.New(), nil)
	assert.Error(t, err)

	_, err = NewCache(nil, time.Minute)
	assert.Error(t, err)
}
