package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

type adminSessionResponse struct {
	Subject   string    `json:"subject"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminSessionHandler converts a bearer admin JWT into the cookie pair browser tooling uses: an
// HttpOnly admin_token and a script-readable csrf_token for the double-submit header.
type AdminSessionHandler struct {
	secure bool
	logger *slog.Logger
}

func NewAdminSessionHandler(secure bool, logger *slog.Logger) *AdminSessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminSessionHandler{secure: secure, logger: logger}
}

// Open requires bearer authentication; a cookie session cannot extend itself.
func (h *AdminSessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	raw, source := middleware.AdminTokenFromRequest(r)
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if source != middleware.TokenSourceBearer || !ok || claims.ExpiresAt == nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "bearer admin token required", nil)
		return
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "csrf token generation failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to open admin session", nil)
		return
	}
	expires := claims.ExpiresAt.Time
	http.SetCookie(w, h.cookie(middleware.AdminTokenCookie, raw, expires, true))
	http.SetCookie(w, h.cookie(middleware.CSRFCookieName, csrf, expires, false))
	response.JSON(w, r, http.StatusCreated, adminSessionResponse{Subject: claims.Subject, CSRFToken: csrf, ExpiresAt: expires.UTC()})
}

// Close clears both cookies.
func (h *AdminSessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{middleware.AdminTokenCookie, middleware.CSRFCookieName} {
		c := h.cookie(name, "", time.Unix(0, 0), name == middleware.AdminTokenCookie)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminSessionHandler) cookie(name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
