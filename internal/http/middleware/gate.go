package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

const (
	OutcomeAllow        = "allow"
	OutcomeAllowPending = "allow_pending"
	OutcomeRedirect     = "redirect"

	ReasonMaintenanceDisabled = "maintenance_disabled"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonWhitelisted         = "whitelisted"
	ReasonAdmin               = "admin"
	ReasonVerifiedSession     = "verified_session"
	ReasonTokenPending        = "token_pending"
	ReasonBlocked             = "blocked"

	ValidatePath = "/special-access/validate"
	VerifyPath   = "/special-access/verify"
)

// Decision is the gate's verdict for one request. PendingToken is set for ALLOW_PENDING so the
// page can render the passkey overlay.
type Decision struct {
	Outcome      string
	Reason       string
	PendingToken string
}

var tokenQueryParams = []string{"special_access", "special_access_token"}

var staticExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
}

type GateConfig struct {
	MaintenancePath string
	FailureMode     string
}

type Gate struct {
	maintenance service.MaintenanceReader
	tokens      service.TokenChecker
	sessions    service.SessionChecker
	accessLog   service.AccessRecorder
	cfg         GateConfig
	logger      *slog.Logger
}

func NewGate(maintenance service.MaintenanceReader, tokens service.TokenChecker, sessions service.SessionChecker, accessLog service.AccessRecorder, cfg GateConfig, logger *slog.Logger) *Gate {
	if cfg.MaintenancePath == "" {
		cfg.MaintenancePath = "/maintenance"
	}
	if cfg.FailureMode == "" {
		cfg.FailureMode = config.FailureModeClosed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{maintenance: maintenance, tokens: tokens, sessions: sessions, accessLog: accessLog, cfg: cfg, logger: logger}
}

// Middleware must run after the web session middleware and OptionalAuth.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		observability.RecordGateDecision(r.Context(), d.Outcome, d.Reason)
		r = r.WithContext(withDecision(r.Context(), d))
		if d.Outcome == OutcomeRedirect {
			http.Redirect(w, r, g.cfg.MaintenancePath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Decide evaluates the gate rules in priority order; the first match wins.
func (g *Gate) Decide(r *http.Request) Decision {
	ctx := r.Context()
	state, err := g.maintenance.State(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "maintenance state unavailable", "error", err, "failure_mode", g.cfg.FailureMode)
		if g.cfg.FailureMode == config.FailureModeOpen {
			return Decision{Outcome: OutcomeAllow, Reason: ReasonStoreUnavailable}
		}
	} else if !state.Enabled {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonMaintenanceDisabled}
	}

	if g.isWhitelisted(r.URL.Path) {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonWhitelisted}
	}
	if claims, ok := ClaimsFromContext(ctx); ok && claims.CanBypassMaintenance() {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonAdmin}
	}

	ws, _ := websession.FromContext(ctx)
	if g.sessions.HasActiveSession(ctx, ws) {
		tokenID := ws.SpecialAccess.TokenID
		g.accessLog.Record(ctx, service.AccessEvent{
			TokenID:   &tokenID,
			SessionID: ws.ID,
			Action:    domain.ActionPageAccess,
			PageURL:   r.URL.RequestURI(),
			IP:        ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		return Decision{Outcome: OutcomeAllow, Reason: ReasonVerifiedSession}
	}

	if token := pendingToken(r); token != "" {
		active, err := g.tokens.IsTokenActive(ctx, token)
		if err != nil {
			g.logger.DebugContext(ctx, "pending token rejected", "error", err)
		}
		if active {
			return Decision{Outcome: OutcomeAllowPending, Reason: ReasonTokenPending, PendingToken: strings.ToLower(token)}
		}
	}
	return Decision{Outcome: OutcomeRedirect, Reason: ReasonBlocked}
}

func (g *Gate) isWhitelisted(p string) bool {
	switch {
	case p == g.cfg.MaintenancePath, p == ValidatePath, p == VerifyPath, p == "/metrics":
		return true
	case p == "/admin", strings.HasPrefix(p, "/admin/"):
		return true
	case strings.HasPrefix(p, "/api/"), strings.HasPrefix(p, "/health/"):
		return true
	}
	_, static := staticExtensions[strings.ToLower(path.Ext(p))]
	return static
}

func pendingToken(r *http.Request) string {
	q := r.URL.Query()
	for _, name := range tokenQueryParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// ClientIP returns the host part of RemoteAddr, which TrustedRealIP has already resolved.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type decisionKey struct{}

type decisionSlot struct {
	decision Decision
	set      bool
}

func withDecisionSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(decisionKey{}).(*decisionSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, decisionKey{}, &decisionSlot{})
}

func withDecision(ctx context.Context, d Decision) context.Context {
	ctx = withDecisionSlot(ctx)
	slot := ctx.Value(decisionKey{}).(*decisionSlot)
	slot.decision, slot.set = d, true
	return ctx
}

func DecisionFromContext(ctx context.Context) (Decision, bool) {
	slot, ok := ctx.Value(decisionKey{}).(*decisionSlot)
	if !ok || !slot.set {
		return Decision{}, false
	}
	return slot.decision, true
}
