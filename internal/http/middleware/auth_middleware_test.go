package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/security"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz123456"

func newTestJWT() *security.JWTManager {
	return security.NewJWTManager("iss", "aud", testSecret)
}

func TestAuthMiddlewareMissingTokenReturnsUnauthorized(t *testing.T) {
	h := AuthMiddleware(newTestJWT())(http.HandlerFunc(noContent))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/special-access/tokens", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rr.Code)
	}
}

func TestAuthMiddlewareAcceptsBearerAndCookie(t *testing.T) {
	jwtMgr := newTestJWT()
	token, err := jwtMgr.SignAdminToken("ops@example.com", []string{security.RoleAdmin}, nil, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	var subject string
	h := AuthMiddleware(jwtMgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		subject = claims.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, bearer)
	if rr.Code != http.StatusNoContent || subject != "ops@example.com" {
		t.Fatalf("bearer: status=%d subject=%q", rr.Code, subject)
	}

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: token})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, cookie)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("cookie: status=%d", rr.Code)
	}
}

func TestAuthMiddlewareRejectsForeignSecret(t *testing.T) {
	other := security.NewJWTManager("iss", "aud", "zyxwvutsrqponmlkjihgfedcba654321")
	token, _ := other.SignAdminToken("x", []string{security.RoleAdmin}, nil, time.Minute)
	h := AuthMiddleware(newTestJWT())(http.HandlerFunc(noContent))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOptionalAuthNeverRejects(t *testing.T) {
	h := OptionalAuth(newTestJWT())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok {
			t.Fatal("invalid token must not produce claims")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}
}
