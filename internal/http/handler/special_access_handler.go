package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/http/view"
	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

const (
	msgInvalidCredentials = "Invalid passkey or revoked access."
	msgSessionLimit       = "Maximum active sessions reached. Please contact the administrator."
	msgNotRequired        = "Maintenance is not active, so special access is not needed. You can use the site normally."
	msgTooManyAttempts    = "Too many attempts. Please try again later."
	msgFormExpired        = "Your form has expired. Please reload the page and try again."
	msgInvalidLink        = "This access link is not valid."
	msgUnexpected         = "Something went wrong. Please try again."

	// redirectDelay is the pause before the success page sends the browser home.
	redirectDelay = 2
)

type PasskeyVerifier interface {
	VerifyPasskey(ctx context.Context, req service.VerifyRequest) (*service.VerifyResult, error)
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type verifyPage struct {
	Token      string
	CSRFToken  string
	Error      string
	VerifyPath string
}

type verifiedPage struct {
	Name      string
	ExpiresAt *time.Time
}

type SpecialAccessHandler struct {
	tokens   service.TokenChecker
	verifier PasskeyVerifier
	guard    service.PasskeyAttemptGuard
	views    *view.Renderer
	debug    bool
	logger   *slog.Logger
}

func NewSpecialAccessHandler(tokens service.TokenChecker, verifier PasskeyVerifier, guard service.PasskeyAttemptGuard, views *view.Renderer, debug bool, logger *slog.Logger) *SpecialAccessHandler {
	if guard == nil {
		guard = service.NewNoopPasskeyAttemptGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpecialAccessHandler{tokens: tokens, verifier: verifier, guard: guard, views: views, debug: debug, logger: logger}
}

// Validate answers whether a token names an active grant. It never mutates state.
func (h *SpecialAccessHandler) Validate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("action") != "validate_token" {
		response.WriteJSON(w, http.StatusBadRequest, validateResponse{Error: "unsupported action"})
		return
	}
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		response.WriteJSON(w, http.StatusBadRequest, validateResponse{Error: "token is required"})
		return
	}
	active, err := h.tokens.IsTokenActive(r.Context(), token)
	switch {
	case errors.Is(err, service.ErrInvalidTokenFormat):
		response.WriteJSON(w, http.StatusOK, validateResponse{Error: "invalid token format"})
	case err != nil:
		h.logger.ErrorContext(r.Context(), "token validation failed", "error", err)
		response.WriteJSON(w, http.StatusServiceUnavailable, validateResponse{Error: h.userError("temporarily unavailable", err)})
	case !active:
		response.WriteJSON(w, http.StatusOK, validateResponse{Error: "invalid or inactive token"})
	default:
		response.WriteJSON(w, http.StatusOK, validateResponse{Valid: true})
	}
}

// VerifyForm renders the passkey form for the token carried in the query string.
func (h *SpecialAccessHandler) VerifyForm(w http.ResponseWriter, r *http.Request) {
	ws, _ := websession.FromContext(r.Context())
	token := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("token")))
	if !security.IsWellFormedToken(token) || ws == nil {
		h.views.Render(w, r, http.StatusBadRequest, view.PageVerify, verifyPage{Error: msgInvalidLink})
		return
	}
	h.views.Render(w, r, http.StatusOK, view.PageVerify, h.formPage(ws, token, ""))
}

// Verify checks the submitted passkey and, on success, marks the web session verified.
func (h *SpecialAccessHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws, ok := websession.FromContext(ctx)
	if !ok {
		h.views.Render(w, r, http.StatusInternalServerError, view.PageVerify, verifyPage{Error: msgUnexpected})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.views.Render(w, r, http.StatusBadRequest, view.PageVerify, verifyPage{Error: msgInvalidLink})
		return
	}
	token := strings.ToLower(strings.TrimSpace(r.PostForm.Get("token")))
	if !security.EqualTokens(ws.CSRFToken, r.PostForm.Get("csrf_token")) {
		h.views.Render(w, r, http.StatusForbidden, view.PageVerify, h.formPage(ws, token, msgFormExpired))
		return
	}

	ip := middleware.ClientIP(r)
	if locked, err := h.guard.Check(ctx, ip, token); err != nil {
		h.logger.WarnContext(ctx, "passkey attempt guard unavailable", "error", err)
	} else if locked > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(locked))
		h.views.Render(w, r, http.StatusTooManyRequests, view.PageVerify, h.formPage(ws, token, msgTooManyAttempts))
		return
	}

	res, err := h.verifier.VerifyPasskey(ctx, service.VerifyRequest{
		Token:     token,
		Passkey:   r.PostForm.Get("passkey"),
		SessionID: ws.ID,
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	switch {
	case err == nil:
		if err := h.guard.Reset(ctx, ip, token); err != nil {
			h.logger.WarnContext(ctx, "passkey attempt guard reset failed", "error", err)
		}
		ws.MarkVerified(res.TokenID, res.Name, res.ExpiresAt)
		w.Header().Set("Refresh", refreshHeader(redirectDelay, "/"))
		h.views.Render(w, r, http.StatusOK, view.PageVerified, verifiedPage{Name: res.Name, ExpiresAt: res.ExpiresAt})
	case errors.Is(err, service.ErrInvalidCredentials):
		if _, gerr := h.guard.RegisterFailure(ctx, ip, token); gerr != nil {
			h.logger.WarnContext(ctx, "passkey attempt guard update failed", "error", gerr)
		}
		h.views.Render(w, r, http.StatusUnauthorized, view.PageVerify, h.formPage(ws, token, msgInvalidCredentials))
	case errors.Is(err, service.ErrSessionLimitReached):
		h.views.Render(w, r, http.StatusConflict, view.PageVerify, h.formPage(ws, token, msgSessionLimit))
	case errors.Is(err, service.ErrSpecialAccessNotRequired):
		h.views.Render(w, r, http.StatusConflict, view.PageVerify, verifyPage{Error: msgNotRequired})
	default:
		h.logger.ErrorContext(ctx, "passkey verification failed", "error", err)
		h.views.Render(w, r, http.StatusInternalServerError, view.PageVerify, h.formPage(ws, token, h.userError(msgUnexpected, err)))
	}
}

// formPage keeps the web session since the rendered form carries its CSRF token.
func (h *SpecialAccessHandler) formPage(ws *websession.Session, token, msg string) verifyPage {
	if !security.IsWellFormedToken(token) {
		return verifyPage{Error: msgInvalidLink}
	}
	ws.Keep()
	return verifyPage{Token: token, CSRFToken: ws.CSRFToken, Error: msg, VerifyPath: middleware.VerifyPath}
}

// userError hides internal error text unless debug mode is on.
func (h *SpecialAccessHandler) userError(msg string, err error) string {
	if h.debug && err != nil {
		return msg + " (" + err.Error() + ")"
	}
	return msg
}
