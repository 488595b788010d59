package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/outbox/payloads"
	"github.com/codeshop/codeshop-backend/pkg/pagination"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

const maxCodeLength = 512

// Service exposes the stock catalog operations.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*AssignResult, error)
	Restock(ctx context.Context, input RestockInput) (*RestockResult, error)
	Delete(ctx context.Context, input DeleteInput) (*DeleteResult, error)
	OverrideStock(ctx context.Context, input OverrideInput) (*OverrideResult, error)
	List(ctx context.Context, filter ItemFilter, page pagination.PageParams) (*pagination.Page[StockItemDTO], error)
	ListAssignments(ctx context.Context, filter AssignmentFilter, page pagination.PageParams) (*pagination.Page[AssignmentDTO], error)
	ListUserCodes(ctx context.Context, userID uuid.UUID, page pagination.PageParams) (*pagination.Page[AssignmentDTO], error)
	Recount(ctx context.Context, productID uuid.UUID, actorID *uuid.UUID) (*RecountResult, error)
	ReconcileAll(ctx context.Context, pageSize int) (ReconcileSummary, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

// ServiceParams groups the stock service dependencies. Cache and Metrics are optional.
type ServiceParams struct {
	Repo    *Repository
	DB      txRunner
	Outbox  outbox.Emitter
	Cache   cacheInvalidator
	Metrics *metrics.StockMetrics
	Logger  *logger.Logger
	Config  config.StockConfig
}

type service struct {
	repo    *Repository
	db      txRunner
	outbox  outbox.Emitter
	cache   cacheInvalidator
	metrics *metrics.StockMetrics
	logg    *logger.Logger
	cfg     config.StockConfig
	now     func() time.Time
}

// NewService constructs the stock service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.MaxAssignQuantity <= 0 {
		cfg.MaxAssignQuantity = 100
	}
	if cfg.MaxRestockBatch <= 0 {
		cfg.MaxRestockBatch = 5000
	}
	if cfg.MaxDeleteBatch <= 0 {
		cfg.MaxDeleteBatch = 1000
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		outbox:  params.Outbox,
		cache:   params.Cache,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Assign claims quantity unused codes for the user. The product row lock plus
// the conditional claim keep concurrent assignments from sharing a code.
func (s *service) Assign(ctx context.Context, input AssignInput) (*AssignResult, error) {
	start := time.Now()
	result, err := s.assign(ctx, input)
	s.observe(metrics.OpAssign, start, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.ProductID)
	s.metrics.AddCodes(metrics.OpAssign, "assigned", len(result.Codes))

	logCtx := s.logg.WithProduct(ctx, input.ProductID.String(), uuidString(result.VariantID))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"assignee_id": input.UserID.String(),
		"quantity":    input.Quantity,
		"stock":       result.Stock.String(),
	})
	s.logg.Info(logCtx, "stock.assigned")
	return result, nil
}

func (s *service) assign(ctx context.Context, input AssignInput) (*AssignResult, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Quantity < 1 || input.Quantity > s.cfg.MaxAssignQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", s.cfg.MaxAssignQuantity))
	}

	exists, err := s.repo.UserExists(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	var result *AssignResult
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := lockProduct(ctx, txRepo, input.ProductID)
		if err != nil {
			return err
		}
		variant, err := resolveVariant(product, input.VariantID)
		if err != nil {
			return err
		}
		key, _, _ := pairState(product, variant)

		items, err := txRepo.SelectUnused(ctx, product.ID, key, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: select unused stock")
		}
		if len(items) < input.Quantity {
			return insufficientStock(input.Quantity, len(items))
		}

		ids := make([]uuid.UUID, 0, len(items))
		codes := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
			codes = append(codes, item.Code)
		}

		at := s.now()
		claimed, err := txRepo.ClaimItems(ctx, ids, input.UserID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: claim stock items")
		}
		if claimed != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock changed concurrently, retry the assignment")
		}

		assignments := make([]models.StockAssignment, 0, len(items))
		for _, item := range items {
			itemID := item.ID
			assignments = append(assignments, models.StockAssignment{
				UserID:      input.UserID,
				ProductID:   product.ID,
				VariantID:   item.VariantID,
				StockItemID: &itemID,
				Code:        item.Code,
				AssignedBy:  input.ActorID,
				AssignedAt:  at,
			})
		}
		if err := txRepo.InsertAssignments(ctx, assignments); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert assignments")
		}

		level, _, err := s.recountPair(ctx, txRepo, product, variant, writeRule)
		if err != nil {
			return err
		}
		if err := txRepo.BumpVersion(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump product version")
		}

		variantID := variantIDOf(variant)
		if err := s.emit(ctx, tx, enums.EventStockAssigned, product.ID, input.ActorID, payloads.StockAssignedEvent{
			ProductID:    product.ID,
			VariantID:    variantID,
			UserID:       input.UserID,
			Quantity:     len(ids),
			StockItemIDs: ids,
			Stock:        level,
		}); err != nil {
			return err
		}

		result = &AssignResult{
			ProductID:    product.ID,
			VariantID:    variantID,
			UserID:       input.UserID,
			Codes:        codes,
			StockItemIDs: ids,
			Stock:        level,
		}
		return nil
	}); err != nil {
		return nil, asTyped(err, "assign stock")
	}
	return result, nil
}

// Restock inserts a batch of codes. Codes already present for the pair, or
// repeated in the batch, are skipped instead of failing the upload.
func (s *service) Restock(ctx context.Context, input RestockInput) (*RestockResult, error) {
	start := time.Now()
	result, err := s.restock(ctx, input)
	s.observe(metrics.OpRestock, start, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.ProductID)
	s.metrics.AddCodes(metrics.OpRestock, "added", result.Added)
	s.metrics.AddCodes(metrics.OpRestock, "skipped", result.Skipped)

	logCtx := s.logg.WithProduct(ctx, input.ProductID.String(), uuidString(input.VariantID))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"added":   result.Added,
		"skipped": result.Skipped,
		"stock":   result.CurrentStock.String(),
	})
	s.logg.Info(logCtx, "stock.restocked")
	return result, nil
}

func (s *service) restock(ctx context.Context, input RestockInput) (*RestockResult, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	codes, err := normalizeCodes(input.Codes, s.cfg.MaxRestockBatch)
	if err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(codes))
	var skippedCodes []string
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			skippedCodes = append(skippedCodes, code)
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}

	var result *RestockResult
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := lockProduct(ctx, txRepo, input.ProductID)
		if err != nil {
			return err
		}
		variant, err := resolveVariant(product, input.VariantID)
		if err != nil {
			return err
		}
		key, _, _ := pairState(product, variant)
		variantID := variantIDOf(variant)

		existing, err := txRepo.ExistingCodes(ctx, product.ID, key, unique)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lookup existing codes")
		}

		items := make([]models.StockItem, 0, len(unique))
		for _, code := range unique {
			if _, ok := existing[code]; ok {
				skippedCodes = append(skippedCodes, code)
				continue
			}
			items = append(items, models.StockItem{
				ProductID: product.ID,
				VariantID: variantID,
				Code:      code,
			})
		}

		inserted, err := txRepo.InsertItems(ctx, items)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert stock items")
		}
		added := int(inserted)
		skipped := len(codes) - added

		level, _, err := s.recountPair(ctx, txRepo, product, variant, writeRule)
		if err != nil {
			return err
		}
		if err := txRepo.BumpVersion(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump product version")
		}

		if err := s.emit(ctx, tx, enums.EventStockRestocked, product.ID, input.ActorID, payloads.StockRestockedEvent{
			ProductID: product.ID,
			VariantID: variantID,
			Added:     added,
			Skipped:   skipped,
			Stock:     level,
		}); err != nil {
			return err
		}

		result = &RestockResult{
			Added:        added,
			Skipped:      skipped,
			SkippedCodes: skippedCodes,
			CurrentStock: level,
		}
		return nil
	}); err != nil {
		return nil, asTyped(err, "restock")
	}
	return result, nil
}

// Delete removes stock items and recomputes every counter they belonged to.
func (s *service) Delete(ctx context.Context, input DeleteInput) (*DeleteResult, error) {
	start := time.Now()
	result, touched, err := s.delete(ctx, input)
	s.observe(metrics.OpDelete, start, err)
	if err != nil {
		return nil, err
	}
	for _, productID := range touched {
		s.invalidate(ctx, productID)
	}
	s.metrics.AddCodes(metrics.OpDelete, "deleted", result.Deleted)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"deleted":  result.Deleted,
		"products": len(touched),
	})
	s.logg.Info(logCtx, "stock.deleted")
	return result, nil
}

func (s *service) delete(ctx context.Context, input DeleteInput) (*DeleteResult, []uuid.UUID, error) {
	ids, err := normalizeIDs(input.IDs, s.cfg.MaxDeleteBatch)
	if err != nil {
		return nil, nil, err
	}

	result := &DeleteResult{Recomputed: []CounterDTO{}}
	var touched []uuid.UUID
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		items, err := txRepo.FindItemsByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load stock items")
		}
		if len(items) == 0 {
			return nil
		}

		pairs := make(map[uuid.UUID]map[uuid.UUID]struct{})
		found := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			found = append(found, item.ID)
			if pairs[item.ProductID] == nil {
				pairs[item.ProductID] = make(map[uuid.UUID]struct{})
			}
			pairs[item.ProductID][models.VariantKey(item.VariantID)] = struct{}{}
		}

		touched = sortedKeys(pairs)
		products := make(map[uuid.UUID]*models.Product, len(touched))
		for _, productID := range touched {
			product, err := lockProduct(ctx, txRepo, productID)
			if err != nil {
				return err
			}
			products[productID] = product
		}

		deleted, err := txRepo.DeleteItems(ctx, found)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete stock items")
		}
		result.Deleted = int(deleted)

		for _, productID := range touched {
			product := products[productID]
			var counters []payloads.StockCounter
			for _, key := range sortedKeys(pairs[productID]) {
				var variant *models.Variant
				if key != uuid.Nil {
					variant = product.FindVariant(key)
					if variant == nil {
						continue
					}
				}
				level, _, err := s.recountPair(ctx, txRepo, product, variant, deleteRule)
				if err != nil {
					return err
				}
				variantID := variantIDOf(variant)
				result.Recomputed = append(result.Recomputed, CounterDTO{ProductID: productID, VariantID: variantID, Stock: level})
				counters = append(counters, payloads.StockCounter{ProductID: productID, VariantID: variantID, Stock: level})
			}
			if err := txRepo.BumpVersion(ctx, productID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump product version")
			}
			if err := s.emit(ctx, tx, enums.EventStockDeleted, productID, input.ActorID, payloads.StockDeletedEvent{
				ProductID: productID,
				Deleted:   countForProduct(items, productID),
				Counters:  counters,
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, nil, asTyped(err, "delete stock")
	}
	return result, touched, nil
}

// OverrideStock sets the counter of a variant-less product. Manual products
// keep reading as unlimited whatever value is sent.
func (s *service) OverrideStock(ctx context.Context, input OverrideInput) (*OverrideResult, error) {
	start := time.Now()
	result, err := s.override(ctx, input)
	s.observe(metrics.OpOverride, start, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.ProductID)

	logCtx := s.logg.WithProduct(ctx, input.ProductID.String(), nil)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"previous": result.Previous.String(),
		"stock":    result.Stock.String(),
	})
	s.logg.Info(logCtx, "stock.overridden")
	return result, nil
}

func (s *service) override(ctx context.Context, input OverrideInput) (*OverrideResult, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must be zero or greater")
	}

	var result *OverrideResult
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := lockProduct(ctx, txRepo, input.ProductID)
		if err != nil {
			return err
		}
		if product.HasVariants() {
			return pkgerrors.New(pkgerrors.CodeValidation, "product has variants, stock is tracked per variant")
		}

		previous := product.Stock
		next := types.FiniteStock(input.Stock)
		if product.DeliveryType == enums.DeliveryManual {
			next = types.UnlimitedStock()
			err = txRepo.SetProductStock(ctx, product.ID, next)
		} else {
			// Marked so the periodic reconcile leaves the value alone.
			err = txRepo.OverrideProductStock(ctx, product.ID, next, s.now())
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set product stock")
		}
		if err := txRepo.BumpVersion(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump product version")
		}
		if err := s.emit(ctx, tx, enums.EventStockOverridden, product.ID, input.ActorID, payloads.StockOverriddenEvent{
			ProductID: product.ID,
			Previous:  previous,
			Stock:     next,
		}); err != nil {
			return err
		}

		result = &OverrideResult{
			ProductID: product.ID,
			Previous:  previous,
			Stock:     next,
			Version:   product.Version + 1,
		}
		return nil
	}); err != nil {
		return nil, asTyped(err, "override stock")
	}
	return result, nil
}

// List returns a page of stock items.
func (s *service) List(ctx context.Context, filter ItemFilter, page pagination.PageParams) (*pagination.Page[StockItemDTO], error) {
	page = page.Normalize()
	items, total, err := s.repo.ListItems(ctx, filter, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock items")
	}
	out := make([]StockItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, newStockItemDTO(item))
	}
	return &pagination.Page[StockItemDTO]{Items: out, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

// ListAssignments returns a page of assignment history.
func (s *service) ListAssignments(ctx context.Context, filter AssignmentFilter, page pagination.PageParams) (*pagination.Page[AssignmentDTO], error) {
	page = page.Normalize()
	rows, total, err := s.repo.ListAssignments(ctx, filter, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	out := make([]AssignmentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, newAssignmentDTO(row))
	}
	return &pagination.Page[AssignmentDTO]{Items: out, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

// ListUserCodes returns the codes handed to one user.
func (s *service) ListUserCodes(ctx context.Context, userID uuid.UUID, page pagination.PageParams) (*pagination.Page[AssignmentDTO], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	return s.ListAssignments(ctx, AssignmentFilter{UserID: &userID}, page)
}

// Recount recomputes every counter of the product from its unused codes. An
// admin override on the product is discarded.
func (s *service) Recount(ctx context.Context, productID uuid.UUID, actorID *uuid.UUID) (*RecountResult, error) {
	return s.runRecount(ctx, productID, actorID, false)
}

func (s *service) runRecount(ctx context.Context, productID uuid.UUID, actorID *uuid.UUID, keepOverride bool) (*RecountResult, error) {
	start := time.Now()
	result, err := s.recount(ctx, productID, actorID, keepOverride)
	s.observe(metrics.OpRecount, start, err)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		s.invalidate(ctx, productID)
		logCtx := s.logg.WithProduct(ctx, productID.String(), nil)
		s.logg.Info(logCtx, "stock.recounted")
	}
	return result, nil
}

func (s *service) recount(ctx context.Context, productID uuid.UUID, actorID *uuid.UUID, keepOverride bool) (*RecountResult, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var result *RecountResult
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := lockProduct(ctx, txRepo, productID)
		if err != nil {
			return err
		}
		if product.HasStockOverride() {
			if keepOverride {
				result = &RecountResult{
					ProductID:  product.ID,
					Overridden: true,
					Counters:   []CounterDTO{{ProductID: product.ID, Stock: product.Stock}},
				}
				return nil
			}
			if err := clearOverride(ctx, txRepo, product); err != nil {
				return err
			}
		}
		unused, err := txRepo.CountUnusedByVariant(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count unused stock")
		}

		result = &RecountResult{ProductID: product.ID, Counters: []CounterDTO{}}
		if product.HasVariants() {
			for i := range product.Variants {
				variant := &product.Variants[i]
				_, delivery, current := pairState(product, variant)
				next := levelAfterRecount(delivery, unused[variant.ID], current)
				changed, err := writePair(ctx, txRepo, product, variant, next)
				if err != nil {
					return err
				}
				result.Changed = result.Changed || changed
				result.Counters = append(result.Counters, CounterDTO{ProductID: product.ID, VariantID: variantIDOf(variant), Stock: next})
			}
			changed, err := syncAggregate(ctx, txRepo, product)
			if err != nil {
				return err
			}
			result.Changed = result.Changed || changed
		} else {
			next := levelAfterRecount(product.DeliveryType, unused[uuid.Nil], product.Stock)
			changed, err := writePair(ctx, txRepo, product, nil, next)
			if err != nil {
				return err
			}
			result.Changed = changed
		}
		result.Counters = append(result.Counters, CounterDTO{ProductID: product.ID, Stock: product.Stock})

		if !result.Changed {
			return nil
		}
		if err := txRepo.BumpVersion(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump product version")
		}
		counters := make([]payloads.StockCounter, 0, len(result.Counters))
		for _, c := range result.Counters {
			counters = append(counters, payloads.StockCounter{ProductID: c.ProductID, VariantID: c.VariantID, Stock: c.Stock})
		}
		return s.emit(ctx, tx, enums.EventStockRecounted, product.ID, actorID, payloads.StockRecountedEvent{
			ProductID: product.ID,
			Counters:  counters,
		})
	}); err != nil {
		return nil, asTyped(err, "recount stock")
	}
	return result, nil
}

// ReconcileAll recounts every product, one transaction per product. Products
// holding an admin override are left alone until a code-driven write or an
// explicit Recount clears it. A failing product does not stop the pass; the
// failures are returned together.
func (s *service) ReconcileAll(ctx context.Context, pageSize int) (ReconcileSummary, error) {
	if pageSize <= 0 {
		pageSize = pagination.MaxLimit
	}
	var (
		summary ReconcileSummary
		errs    error
		after   = uuid.Nil
	)
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		ids, err := s.repo.ListProductIDs(ctx, after, pageSize)
		if err != nil {
			return summary, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products"))
		}
		for _, id := range ids {
			summary.Scanned++
			result, err := s.runRecount(ctx, id, nil, true)
			if err != nil {
				summary.Failed++
				errs = multierr.Append(errs, fmt.Errorf("product %s: %w", id, err))
				continue
			}
			if result.Overridden {
				summary.Overridden++
			}
			if result.Changed {
				summary.Corrected++
			}
		}
		if len(ids) < pageSize {
			return summary, errs
		}
		after = ids[len(ids)-1]
	}
}

type levelRule func(delivery enums.DeliveryType, unused int64, current types.StockLevel) types.StockLevel

func writeRule(delivery enums.DeliveryType, unused int64, _ types.StockLevel) types.StockLevel {
	return levelAfterWrite(delivery, unused)
}

func deleteRule(delivery enums.DeliveryType, unused int64, _ types.StockLevel) types.StockLevel {
	return levelAfterDelete(delivery, unused)
}

// recountPair recomputes one (product, variant) counter and, for products with
// variants, the product-level aggregate. It returns the pair level.
func (s *service) recountPair(ctx context.Context, repo *Repository, product *models.Product, variant *models.Variant, rule levelRule) (types.StockLevel, bool, error) {
	if variant == nil && product.HasStockOverride() {
		if err := clearOverride(ctx, repo, product); err != nil {
			return types.StockLevel{}, false, err
		}
	}
	key, delivery, current := pairState(product, variant)
	unused, err := repo.CountUnused(ctx, product.ID, key)
	if err != nil {
		return types.StockLevel{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count unused stock")
	}
	next := rule(delivery, unused, current)
	changed, err := writePair(ctx, repo, product, variant, next)
	if err != nil {
		return types.StockLevel{}, false, err
	}
	if variant != nil {
		aggChanged, err := syncAggregate(ctx, repo, product)
		if err != nil {
			return types.StockLevel{}, false, err
		}
		changed = changed || aggChanged
	}
	return next, changed, nil
}

func writePair(ctx context.Context, repo *Repository, product *models.Product, variant *models.Variant, next types.StockLevel) (bool, error) {
	if variant == nil {
		if next.Equal(product.Stock) {
			return false, nil
		}
		if err := repo.SetProductStock(ctx, product.ID, next); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set product stock")
		}
		product.Stock = next
		return true, nil
	}
	if next.Equal(variant.Stock) {
		return false, nil
	}
	if err := repo.SetVariantStock(ctx, variant.ID, next); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set variant stock")
	}
	variant.Stock = next
	return true, nil
}

func clearOverride(ctx context.Context, repo *Repository, product *models.Product) error {
	if err := repo.ClearStockOverride(ctx, product.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: clear stock override")
	}
	product.StockOverriddenAt = nil
	return nil
}

func syncAggregate(ctx context.Context, repo *Repository, product *models.Product) (bool, error) {
	levels := make([]types.StockLevel, 0, len(product.Variants))
	for _, v := range product.Variants {
		levels = append(levels, v.Stock)
	}
	return writePair(ctx, repo, product, nil, AggregateVariants(levels))
}

func pairState(product *models.Product, variant *models.Variant) (uuid.UUID, enums.DeliveryType, types.StockLevel) {
	if variant == nil {
		return uuid.Nil, product.DeliveryType, product.Stock
	}
	return variant.ID, variant.EffectiveDeliveryType(product.DeliveryType), variant.Stock
}

func lockProduct(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Product, error) {
	product, err := repo.LockProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock product")
	}
	return product, nil
}

// resolveVariant requires a known variant for products with variants and
// ignores the variant id otherwise.
func resolveVariant(product *models.Product, variantID *uuid.UUID) (*models.Variant, error) {
	if !product.HasVariants() {
		return nil, nil
	}
	if variantID == nil || *variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required for products with variants")
	}
	variant := product.FindVariant(*variantID)
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
	}
	return variant, nil
}

func insufficientStock(requested, available int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]int{
		"requested": requested,
		"available": available,
	})
}

func normalizeCodes(raw []string, max int) ([]string, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one code is required")
	}
	if len(raw) > max {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d codes per upload", max))
	}
	codes := make([]string, 0, len(raw))
	for i, code := range raw {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d] must not be blank", i))
		}
		if len(trimmed) > maxCodeLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d] exceeds %d characters", i, maxCodeLength))
		}
		codes = append(codes, trimmed)
	}
	return codes, nil
}

func normalizeIDs(raw []uuid.UUID, max int) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one id is required")
	}
	if len(raw) > max {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d ids per request", max))
	}
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, id := range raw {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ids must be valid uuids")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// sortedKeys gives a stable lock order so concurrent deletes cannot deadlock.
func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func countForProduct(items []models.StockItem, productID uuid.UUID) int {
	n := 0
	for _, item := range items {
		if item.ProductID == productID {
			n++
		}
	}
	return n
}

func variantIDOf(variant *models.Variant) *uuid.UUID {
	if variant == nil {
		return nil
	}
	id := variant.ID
	return &id
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
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
		logCtx := s.logg.WithProduct(ctx, productID.String(), nil)
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "stock.cache_invalidate_failed")
	}
}

func (s *service) observe(op string, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		outcome = metrics.OutcomeInsufficientStock
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		outcome = metrics.OutcomeConflict
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.Observe(op, outcome, time.Since(start))
}

func asTyped(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
