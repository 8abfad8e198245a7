package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/view"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

type homePage struct {
	Verified     bool
	Name         string
	ExpiresAt    *time.Time
	PendingToken string
	ValidatePath string
	VerifyPath   string
}

// SiteHandler serves the pages that sit behind the gate plus the maintenance page itself.
type SiteHandler struct {
	maintenance service.MaintenanceReader
	views       *view.Renderer
	logger      *slog.Logger
}

func NewSiteHandler(maintenance service.MaintenanceReader, views *view.Renderer, logger *slog.Logger) *SiteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteHandler{maintenance: maintenance, views: views, logger: logger}
}

// Home renders protected content. An ALLOW_PENDING decision adds the verification overlay.
func (h *SiteHandler) Home(w http.ResponseWriter, r *http.Request) {
	page := homePage{ValidatePath: middleware.ValidatePath, VerifyPath: middleware.VerifyPath}
	if ws, ok := websession.FromContext(r.Context()); ok && ws.IsVerified() {
		page.Verified = true
		page.Name = ws.SpecialAccess.Name
		page.ExpiresAt = ws.SpecialAccess.ExpiresAt
	}
	if d, ok := middleware.DecisionFromContext(r.Context()); ok && d.Outcome == middleware.OutcomeAllowPending {
		page.PendingToken = d.PendingToken
	}
	h.views.Render(w, r, http.StatusOK, view.PageHome, page)
}

func (h *SiteHandler) Maintenance(w http.ResponseWriter, r *http.Request) {
	state, err := h.maintenance.State(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "maintenance state unavailable for status page", "error", err)
		state = service.MaintenanceState{Enabled: true}
	}
	status := http.StatusOK
	if state.Enabled {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "300")
	}
	h.views.Render(w, r, status, view.PageMaintenance, state)
}
