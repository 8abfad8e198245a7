package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"

	// AdminTokenCookie carries an admin JWT for browser-based administrators. It is issued by
	// the admin session endpoint.
	AdminTokenCookie = "admin_token"

	TokenSourceBearer = "bearer"
	TokenSourceCookie = "cookie"
	TokenSourceNone   = "none"
)

// AuthMiddleware requires a valid admin JWT from the admin cookie or a bearer header.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := AdminTokenFromRequest(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAdminToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches admin claims when a valid token is present and never rejects.
func OptionalAuth(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := AdminTokenFromRequest(r)
			if raw == "" || jwtMgr == nil {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := jwtMgr.ParseAdminToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				next.ServeHTTP(w, r)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
		})
	}
}

// AdminTokenFromRequest returns the raw admin JWT and where it came from. A bearer header wins
// over the cookie.
func AdminTokenFromRequest(r *http.Request) (string, string) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		if raw := strings.TrimSpace(auth[7:]); raw != "" {
			return raw, TokenSourceBearer
		}
	}
	if raw := security.GetCookie(r, AdminTokenCookie); raw != "" {
		return raw, TokenSourceCookie
	}
	return "", TokenSourceNone
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}
