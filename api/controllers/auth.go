package controllers

import (
	"net/http"

	"github.com/codeshop/codeshop-backend/api/middleware"
	"github.com/codeshop/codeshop-backend/internal/auth"
	"github.com/codeshop/codeshop-backend/pkg/logger"
)

// AuthLogin exchanges credentials for an access and refresh token pair.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "auth")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		body, err := decodeBody[auth.LoginRequest](r)
		if err != nil {
			return nil, err
		}
		return svc.Login(r.Context(), body)
	})
}

// AuthRefresh rotates the refresh token and issues a new access token.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "auth")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		body, err := decodeBody[auth.RefreshRequest](r)
		if err != nil {
			return nil, err
		}
		return svc.Refresh(r.Context(), body)
	})
}

// AuthLogout revokes the session of the token that authenticated the request.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "auth")
	}
	return serve(logg, http.StatusOK, func(r *http.Request) (any, error) {
		if err := svc.Logout(r.Context(), middleware.AccessIDFromContext(r.Context())); err != nil {
			return nil, err
		}
		return map[string]string{"status": "logged_out"}, nil
	})
}
