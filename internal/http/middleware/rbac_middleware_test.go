package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/service"
)

func withClaims(req *http.Request, claims *security.Claims) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))
}

func TestRequirePermission(t *testing.T) {
	cases := []struct {
		name   string
		claims *security.Claims
		want   int
	}{
		{name: "missing claims", claims: nil, want: http.StatusUnauthorized},
		{name: "wrong permission", claims: &security.Claims{Permissions: []string{security.PermissionRead}}, want: http.StatusForbidden},
		{name: "exact permission", claims: &security.Claims{Permissions: []string{security.PermissionWrite}}, want: http.StatusNoContent},
		{name: "wildcard", claims: &security.Claims{Permissions: []string{"special_access:*"}}, want: http.StatusNoContent},
		{name: "admin role", claims: &security.Claims{Roles: []string{"admin"}}, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mw := RequirePermission(service.NewRBACService(), security.PermissionWrite)
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.claims != nil {
				req = withClaims(req, tc.claims)
			}
			rr := httptest.NewRecorder()
			mw(http.HandlerFunc(noContent)).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
