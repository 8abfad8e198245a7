package middleware

import (
	"net/http"
	"strings"

	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware enforces the double-submit check on unsafe methods. Requests authenticated with
// a bearer header carry no ambient credentials and are exempt.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if _, source := AdminTokenFromRequest(r); source == TokenSourceBearer {
			next.ServeHTTP(w, r)
			return
		}
		cookie := security.GetCookie(r, CSRFCookieName)
		if cookie == "" {
			observability.RecordCSRFRejection(r.Context(), csrfPathGroup(r.URL.Path), "missing_cookie")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "csrf token missing", nil)
			return
		}
		if !security.EqualTokens(cookie, r.Header.Get(CSRFHeaderName)) {
			observability.RecordCSRFRejection(r.Context(), csrfPathGroup(r.URL.Path), "mismatch")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "csrf token mismatch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfPathGroup bounds metric cardinality to the first meaningful path segments.
func csrfPathGroup(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "root"
	}
	if parts[0] == "api" {
		if len(parts) >= 3 {
			return "api/" + parts[2]
		}
		return "api"
	}
	return parts[0]
}
