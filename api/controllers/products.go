package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/codeshop/codeshop-backend/api/validators"
	productsvc "github.com/codeshop/codeshop-backend/internal/products"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/logger"
)

const maxProductNameLen = 200

type createProductRequest struct {
	Name         string                 `json:"name" validate:"required,max=200"`
	Slug         string                 `json:"slug,omitempty" validate:"omitempty,max=120"`
	DeliveryType string                 `json:"delivery_type" validate:"required,oneof=automatic manual"`
	Price        decimal.Decimal        `json:"price"`
	IsActive     *bool                  `json:"is_active,omitempty"`
	Variants     []createVariantRequest `json:"variants,omitempty" validate:"omitempty,max=50,dive"`
}

type createVariantRequest struct {
	Name         string           `json:"name" validate:"required,max=200"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	DeliveryType *string          `json:"delivery_type,omitempty" validate:"omitempty,oneof=automatic manual"`
}

type updateProductRequest struct {
	Name         *string                `json:"name,omitempty" validate:"omitempty,max=200"`
	Price        *decimal.Decimal       `json:"price,omitempty"`
	IsActive     *bool                  `json:"is_active,omitempty"`
	DeliveryType *string                `json:"delivery_type,omitempty" validate:"omitempty,oneof=automatic manual"`
	Variants     []updateVariantRequest `json:"variants,omitempty" validate:"omitempty,dive"`
}

type updateVariantRequest struct {
	ID           string           `json:"id" validate:"required,uuid"`
	Name         *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	// DeliveryType "" clears the override; the service validates other values.
	DeliveryType *string          `json:"delivery_type,omitempty"`
}

// ProductCreate registers a product; its stock starts from the delivery type.
func ProductCreate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "product")
	}
	return serve(logg, http.StatusCreated, func(r *http.Request) (any, error) {
		actorID, err := actorFromContext(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody[createProductRequest](r)
		if err != nil {
			return nil, err
		}
		input, err := body.toCreateInput()
		if err != nil {
			return nil, err
		}
		return svc.CreateProduct(r.Context(), &actorID, input)
	})
}

// ProductUpdate applies a partial update, including delivery type switches.
func ProductUpdate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "product")
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
		body, err := decodeBody[updateProductRequest](r)
		if err != nil {
			return nil, err
		}
		input, err := body.toUpdateInput()
		if err != nil {
			return nil, err
		}
		return svc.UpdateProduct(r.Context(), &actorID, productID, input)
	})
}

func ProductGet(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "product")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			return nil, err
		}
		return svc.GetProduct(r.Context(), productID)
	})
}

func ProductList(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "product")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		params, err := validators.ParseCursorParams(r)
		if err != nil {
			return nil, err
		}
		return svc.ListProducts(r.Context(), params)
	})
}

// ProductAvailability answers from the availability cache when it can.
func ProductAvailability(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "product")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			return nil, err
		}
		variantID, err := validators.ParseQueryUUID(r, "variant")
		if err != nil {
			return nil, err
		}
		return svc.GetAvailability(r.Context(), productID, variantID)
	})
}

func parseDelivery(raw, field string) (enums.DeliveryType, error) {
	delivery, err := enums.ParseDeliveryType(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return delivery, nil
}

func (r createProductRequest) toCreateInput() (productsvc.CreateProductInput, error) {
	delivery, err := parseDelivery(r.DeliveryType, "delivery_type")
	if err != nil {
		return productsvc.CreateProductInput{}, err
	}
	input := productsvc.CreateProductInput{
		Name:         validators.SanitizeString(r.Name, maxProductNameLen),
		Slug:         strings.TrimSpace(r.Slug),
		DeliveryType: delivery,
		Price:        r.Price,
		IsActive:     r.IsActive,
		Variants:     make([]productsvc.VariantInput, len(r.Variants)),
	}
	for i, v := range r.Variants {
		input.Variants[i] = productsvc.VariantInput{Name: validators.SanitizeString(v.Name, maxProductNameLen), Price: v.Price}
		if v.DeliveryType == nil {
			continue
		}
		variantDelivery, err := parseDelivery(*v.DeliveryType, "variant delivery_type")
		if err != nil {
			return productsvc.CreateProductInput{}, err
		}
		input.Variants[i].DeliveryType = &variantDelivery
	}
	return input, nil
}

func (r updateProductRequest) toUpdateInput() (productsvc.UpdateProductInput, error) {
	input := productsvc.UpdateProductInput{Name: r.Name, Price: r.Price, IsActive: r.IsActive}
	if r.DeliveryType != nil {
		delivery, err := parseDelivery(*r.DeliveryType, "delivery_type")
		if err != nil {
			return productsvc.UpdateProductInput{}, err
		}
		input.DeliveryType = &delivery
	}
	for _, v := range r.Variants {
		id, err := parseID(v.ID, "variants.id")
		if err != nil {
			return productsvc.UpdateProductInput{}, err
		}
		input.Variants = append(input.Variants, productsvc.VariantUpdateInput{
			ID:           id,
			Name:         v.Name,
			Price:        v.Price,
			DeliveryType: v.DeliveryType,
		})
	}
	return input, nil
}
