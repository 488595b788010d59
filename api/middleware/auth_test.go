package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codeshop/codeshop-backend/pkg/auth"
	"github.com/codeshop/codeshop-backend/pkg/auth/session"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func TestAuthStatusCodes(t *testing.T) {
	valid, _ := mintTestToken(t, testJWT, uuid.New(), enums.UserRoleCustomer)
	foreign, _ := mintTestToken(t, config.JWTConfig{Secret: "other", Issuer: "issuer", ExpirationMinutes: 60}, uuid.New(), enums.UserRoleCustomer)

	cases := []struct {
		name     string
		header   string
		verifier stubSessionVerifier
		want     int
	}{
		{name: "no header", verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer invalid", verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + foreign, verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "revoked session", header: "Bearer " + valid, verifier: stubSessionVerifier{}, want: http.StatusUnauthorized},
		{name: "session store down", header: "Bearer " + valid, verifier: stubSessionVerifier{err: errors.New("redis down")}, want: http.StatusServiceUnavailable},
		{name: "live session", header: "bearer " + valid, verifier: stubSessionVerifier{ok: true}, want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := serveAuth(Auth(testJWT, tc.verifier, nil)(okHandler()), tc.header)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestAuthSeedsContext(t *testing.T) {
	userID := uuid.New()
	token, accessID := mintTestToken(t, testJWT, userID, enums.UserRoleAdmin)

	var user, role, access string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		role = RoleFromContext(r.Context())
		access = AccessIDFromContext(r.Context())
	})
	resp := serveAuth(Auth(testJWT, stubSessionVerifier{ok: true}, nil)(next), "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if user != userID.String() || role != string(enums.UserRoleAdmin) || access != accessID {
		t.Fatalf("unexpected context user=%q role=%q access=%q", user, role, access)
	}
}

func TestAuthWithoutVerifierTrustsSignature(t *testing.T) {
	token, _ := mintTestToken(t, testJWT, uuid.New(), enums.UserRoleCustomer)
	resp := serveAuth(Auth(testJWT, nil, nil)(okHandler()), "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":     {token: "abc", ok: true},
		"  BEARER  abc ": {token: "abc", ok: true},
		"Bearer":         {},
		"Bearer   ":      {},
		"abc":            {},
		"Token abc":      {},
	}
	for header, want := range cases {
		token, ok := bearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("%q: got (%q, %v) want (%q, %v)", header, token, ok, want.token, want.ok)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	gate := RequireAdmin(nil)(okHandler())
	for role, want := range map[enums.UserRole]int{
		enums.UserRoleCustomer: http.StatusForbidden,
		enums.UserRoleAdmin:    http.StatusOK,
		"":                     http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/stock/assign", nil)
		req = req.WithContext(WithRole(req.Context(), role.String()))
		resp := httptest.NewRecorder()
		gate.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, resp.Code)
		}
	}
}

func serveAuth(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role, JTI: accessID})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, accessID
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok && s.err == nil, s.err
}
