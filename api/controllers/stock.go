package controllers

import (
	"net/http"

	"github.com/codeshop/codeshop-backend/api/validators"
	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/logger"
)

// VariantID is checked by parseOptionalID so a blank value reads as absent.
type restockRequest struct {
	ProductID string   `json:"productId" validate:"required,uuid"`
	VariantID *string  `json:"variantId,omitempty"`
	Items     []string `json:"items" validate:"required,min=1"`
}

type deleteStockRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

type assignRequest struct {
	ProductID string  `json:"productId" validate:"required,uuid"`
	VariantID *string `json:"variantId,omitempty"`
	UserID    string  `json:"userId" validate:"required,uuid"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
}

type recountRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
}

type overrideStockRequest struct {
	Stock *int `json:"stock" validate:"required,min=0"`
}

// StockList pages through stock items filtered by product, variant and used flag.
func StockList(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		filter, err := parseItemFilter(r)
		if err != nil {
			return nil, err
		}
		page, err := validators.ParsePageParams(r)
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), filter, page)
	})
}

// StockRestock uploads a batch of codes.
func StockRestock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusCreated, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[restockRequest](r)
		if err != nil {
			return nil, err
		}
		input := stock.RestockInput{Codes: body.Items, ActorID: &actorID}
		if input.ProductID, err = parseID(body.ProductID, "product id"); err != nil {
			return nil, err
		}
		if input.VariantID, err = parseOptionalID(body.VariantID, "variant id"); err != nil {
			return nil, err
		}
		return svc.Restock(r.Context(), input)
	})
}

// StockDelete removes stock items by id and recomputes the counters they fed.
func StockDelete(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[deleteStockRequest](r)
		if err != nil {
			return nil, err
		}
		ids, err := parseUUIDList(body.IDs, "ids")
		if err != nil {
			return nil, err
		}
		return svc.Delete(r.Context(), stock.DeleteInput{IDs: ids, ActorID: &actorID})
	})
}

// StockAssign hands unused codes to a user. A shortfall answers 400 with
// {requested, available} in the error details.
func StockAssign(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[assignRequest](r)
		if err != nil {
			return nil, err
		}
		input := stock.AssignInput{Quantity: body.Quantity, ActorID: &actorID}
		if input.ProductID, err = parseID(body.ProductID, "product id"); err != nil {
			return nil, err
		}
		if input.VariantID, err = parseOptionalID(body.VariantID, "variant id"); err != nil {
			return nil, err
		}
		if input.UserID, err = parseID(body.UserID, "user id"); err != nil {
			return nil, err
		}
		return svc.Assign(r.Context(), input)
	})
}

// StockRecount rebuilds every counter of one product from its unused codes.
func StockRecount(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[recountRequest](r)
		if err != nil {
			return nil, err
		}
		productID, err := parseID(body.ProductID, "product id")
		if err != nil {
			return nil, err
		}
		return svc.Recount(r.Context(), productID, &actorID)
	})
}

// ProductStockOverride sets the counter of a variant-less product directly.
func ProductStockOverride(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[overrideStockRequest](r)
		if err != nil {
			return nil, err
		}
		return svc.OverrideStock(r.Context(), stock.OverrideInput{ProductID: productID, Stock: *body.Stock, ActorID: &actorID})
	})
}

// StockAssignments lists the hand-out history for admins.
func StockAssignments(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		var filter stock.AssignmentFilter
		var err error
		if filter.UserID, err = validators.ParseQueryUUID(r, "user"); err != nil {
			return nil, err
		}
		if filter.ProductID, err = validators.ParseQueryUUID(r, "product"); err != nil {
			return nil, err
		}
		page, err := validators.ParsePageParams(r)
		if err != nil {
			return nil, err
		}
		return svc.ListAssignments(r.Context(), filter, page)
	})
}

// MyCodes lists the codes assigned to the caller.
func MyCodes(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "stock")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		userID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		page, err := validators.ParsePageParams(r)
		if err != nil {
			return nil, err
		}
		return svc.ListUserCodes(r.Context(), userID, page)
	})
}

func parseItemFilter(r *http.Request) (stock.ItemFilter, error) {
	var filter stock.ItemFilter
	var err error
	if filter.ProductID, err = validators.ParseQueryUUID(r, "product"); err != nil {
		return stock.ItemFilter{}, err
	}
	if filter.VariantID, err = validators.ParseQueryUUID(r, "variant"); err != nil {
		return stock.ItemFilter{}, err
	}
	if filter.IsUsed, err = validators.ParseQueryBool(r, "isUsed"); err != nil {
		return stock.ItemFilter{}, err
	}
	return filter, nil
}
