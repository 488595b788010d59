package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/codeshop/codeshop-backend/api/middleware"
	"github.com/codeshop/codeshop-backend/api/responses"
	"github.com/codeshop/codeshop-backend/api/validators"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/logger"
)

// endpoint runs one request and returns what goes inside the data envelope.
type endpoint func(r *http.Request) (any, error)

// serve adapts an endpoint to net/http. Every failure goes through
// responses.WriteError so status mapping and logging stay in one place.
func serve(logg *logger.Logger, status int, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fn(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, data)
	}
}

// unavailable answers every request with 500; used when a dependency was not wired.
func unavailable(logg *logger.Logger, name string) http.HandlerFunc {
	return serve(logg, http.StatusOK, func(*http.Request) (any, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
	})
}

// decodeBody decodes and validates the JSON body into a fresh T.
func decodeBody[T any](r *http.Request) (T, error) {
	var body T
	err := validators.DecodeJSONBody(r, &body)
	return body, err
}

func actorFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func parseID(raw, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// parseOptionalID treats nil and blank as absent.
func parseOptionalID(raw *string, label string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := parseID(*raw, label)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseUUIDList(values []string, field string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(values))
	for i, raw := range values {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id").WithDetails(map[string]any{"field": field, "value": raw})
		}
		ids[i] = id
	}
	return ids, nil
}
