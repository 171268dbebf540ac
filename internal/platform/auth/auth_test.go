package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testCfg = JWTConfig{Issuer: "rcm-test", Audience: "rcm-api", SigningKey: []byte("secret")}

func signedRequest(t *testing.T, claims Claims) *http.Request {
	t.Helper()
	tok, err := SignToken(testCfg, claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	org := uuid.New()
	req := signedRequest(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "biller-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrganizationID: org.String(),
		Roles:          []string{RoleBilling},
	})
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())

	err := JWTMiddleware(testCfg)(func(c echo.Context) error {
		ctx := c.Request().Context()
		if UserIDFromContext(ctx) != "biller-1" {
			t.Errorf("unexpected subject %q", UserIDFromContext(ctx))
		}
		if OrganizationFromContext(ctx) != org {
			t.Errorf("unexpected organization %s", OrganizationFromContext(ctx))
		}
		if c.Get("organization_id") != org.String() {
			t.Error("expected organization_id on echo context")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	e := echo.New()
	next := func(echo.Context) error { t.Error("handler must not run"); return nil }

	expired := signedRequest(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		OrganizationID:   uuid.NewString(),
	})
	noOrg := signedRequest(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	missing := httptest.NewRequest(http.MethodGet, "/", nil)
	basic := httptest.NewRequest(http.MethodGet, "/", nil)
	basic.Header.Set("Authorization", "Basic Zm9vOmJhcg==")

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"missing header", missing, http.StatusUnauthorized},
		{"wrong scheme", basic, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"no organization", noOrg, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := JWTMiddleware(testCfg)(next)(e.NewContext(tt.req, httptest.NewRecorder()))
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.code {
				t.Errorf("expected %d, got %v", tt.code, err)
			}
		})
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	def := uuid.New()
	override := uuid.New()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Organization-ID", override.String())
	DevAuthMiddleware(def)(func(c echo.Context) error {
		if got := OrganizationFromContext(c.Request().Context()); got != override {
			t.Errorf("expected header organization, got %s", got)
		}
		return nil
	})(e.NewContext(req, httptest.NewRecorder()))

	DevAuthMiddleware(def)(func(c echo.Context) error {
		if got := OrganizationFromContext(c.Request().Context()); got != def {
			t.Errorf("expected default organization, got %s", got)
		}
		return nil
	})(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		roles []string
		want  bool
	}{
		{[]string{RoleBilling}, true},
		{[]string{RoleAdmin}, true},
		{[]string{RoleAuditor}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := HasRole(tt.roles, RoleBilling); got != tt.want {
			t.Errorf("HasRole(%v) = %v, want %v", tt.roles, got, tt.want)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), "u", []string{RoleAuditor}, uuid.New()))
	err := RequireRole(RoleBilling)(func(echo.Context) error { return nil })(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoOrganization(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), "svc", []string{RoleAdmin}, uuid.Nil))
	called := false
	err := RequireRole(RoleBilling)(func(echo.Context) error {
		called = true
		return nil
	})(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden || called {
		t.Errorf("expected 403 without calling the handler, got %v", err)
	}
}
