package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/sandeepkv93/special-access-gate/internal/http/response"
)

// RateLimitByIP limits requests per client IP over a sliding minute. The key is RemoteAddr, so
// forwarded headers only count once TrustedRealIP accepted them. A non-positive rpm disables
// the limiter.
func RateLimitByIP(rpm int) func(http.Handler) http.Handler {
	if rpm <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(rpm, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
}
