// Package availability caches per-product stock availability in Redis.
//
// Each product owns one hash keyed by product id; variant-less availability lives
// under the "_" field and each variant under its id. Every stock mutation drops
// the whole hash after commit, so readers see at most one stale TTL window only
// when the invalidation itself fails.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

const (
	// DefaultTTL bounds staleness when an invalidation is lost.
	DefaultTTL = 5 * time.Minute

	productField = "_"
)

// Entry is the cached read model for one (product, variant) pair.
type Entry struct {
	ProductID    uuid.UUID          `json:"product_id"`
	VariantID    *uuid.UUID         `json:"variant_id,omitempty"`
	DeliveryType enums.DeliveryType `json:"delivery_type"`
	Stock        types.StockLevel   `json:"stock"`
	Available    bool               `json:"available"`
	Version      int                `json:"version"`
}

// NewEntry derives the availability flag from the stock level.
func NewEntry(productID uuid.UUID, variantID *uuid.UUID, delivery enums.DeliveryType, stock types.StockLevel, version int) Entry {
	return Entry{
		ProductID:    productID,
		VariantID:    variantID,
		DeliveryType: delivery,
		Stock:        stock,
		Available:    stock.CanFulfil(1),
		Version:      version,
	}
}

type store interface {
	AvailabilityKey(productID string) string
	HGet(ctx context.Context, key, field string) (string, error)
	HSetWithTTL(ctx context.Context, key, field string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Cache reads and writes availability hashes.
type Cache struct {
	store store
	ttl   time.Duration
}

// NewCache builds a cache over the Redis client.
func NewCache(store store, ttl time.Duration) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}, nil
}

// Get returns the cached entry. A miss is reported as ok=false with a nil error.
func (c *Cache) Get(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Entry, bool, error) {
	raw, err := c.store.HGet(ctx, c.store.AvailabilityKey(productID.String()), field(variantID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("availability cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// A corrupt field is treated as a miss and overwritten by the next Set.
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores the entry under its product hash.
func (c *Cache) Set(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("availability cache encode: %w", err)
	}
	key := c.store.AvailabilityKey(entry.ProductID.String())
	if err := c.store.HSetWithTTL(ctx, key, field(entry.VariantID), payload, c.ttl); err != nil {
		return fmt.Errorf("availability cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached pair of the product.
func (c *Cache) Invalidate(ctx context.Context, productID uuid.UUID) error {
	if err := c.store.Del(ctx, c.store.AvailabilityKey(productID.String())); err != nil {
		return fmt.Errorf("availability cache invalidate: %w", err)
	}
	return nil
}

func field(variantID *uuid.UUID) string {
	if variantID == nil || *variantID == uuid.Nil {
		return productField
	}
	return variantID.String()
}
