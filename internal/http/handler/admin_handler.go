package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
	"github.com/sandeepkv93/special-access-gate/internal/service"
)

type AdminHandler struct {
	registry    *service.TokenRegistry
	binder      *service.SessionBinder
	accessLog   *service.AccessLogger
	maintenance *service.MaintenanceService
	logger      *slog.Logger
}

func NewAdminHandler(registry *service.TokenRegistry, binder *service.SessionBinder, accessLog *service.AccessLogger, maintenance *service.MaintenanceService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{registry: registry, binder: binder, accessLog: accessLog, maintenance: maintenance, logger: logger}
}

type maintenanceRequest struct {
	Enabled bool       `json:"enabled"`
	EndTime *time.Time `json:"end_time"`
}

func actor(r *http.Request) string {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "unknown"
}

func (h *AdminHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	rows, err := h.registry.ListTokens(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list tokens", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, rows)
}

func (h *AdminHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTokenInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "name is required", map[string]string{"field": "name"})
		return
	}
	if in.MaxSessions < 0 || in.MaxSessions > service.MaxSessionsCeiling {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "max_sessions out of range", map[string]int{"min": 1, "max": service.MaxSessionsCeiling})
		return
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		in.CreatedBy = actor(r)
	}
	created, err := h.registry.CreateToken(r.Context(), in)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create token", nil)
		return
	}
	observability.Audit(r, "special_access.token.created", "token_id", created.ID, "actor", actor(r))
	response.JSON(w, r, http.StatusCreated, created)
}

func (h *AdminHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	h.setTokenState(w, r, false)
}

func (h *AdminHandler) ReactivateToken(w http.ResponseWriter, r *http.Request) {
	h.setTokenState(w, r, true)
}

func (h *AdminHandler) setTokenState(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := uintParam(r, "id")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	event := "special_access.token.revoked"
	if active {
		event = "special_access.token.reactivated"
		err = h.registry.ReactivateToken(r.Context(), id, actor(r))
	} else {
		err = h.registry.RevokeToken(r.Context(), id, actor(r))
	}
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "token not found", nil)
	case err != nil:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to update token", nil)
	default:
		observability.Audit(r, event, "token_id", id, "actor", actor(r))
		response.JSON(w, r, http.StatusOK, map[string]any{"id": id, "is_active": active})
	}
}

func (h *AdminHandler) CleanupTokens(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.registry.CleanupUnknownTokens(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to clean up tokens", nil)
		return
	}
	observability.Audit(r, "special_access.token.cleanup", "deleted", deleted, "actor", actor(r))
	response.JSON(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	rows, err := h.binder.ListSessions(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "token not found", nil)
	case err != nil:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list sessions", nil)
	default:
		response.JSON(w, r, http.StatusOK, rows)
	}
}

func (h *AdminHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	err = h.binder.TerminateSession(r.Context(), id, actor(r))
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
	case err != nil:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to terminate session", nil)
	default:
		observability.Audit(r, "special_access.session.terminated", "session_id", id, "actor", actor(r))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *AdminHandler) AccessLog(w http.ResponseWriter, r *http.Request) {
	q := repository.AccessLogQuery{
		PageRequest: repository.PageRequest{Page: queryInt(r, "page"), PageSize: queryInt(r, "page_size")},
		Action:      strings.TrimSpace(r.URL.Query().Get("action")),
	}
	if n := queryInt(r, "token_id"); n > 0 {
		id := uint(n)
		q.TokenID = &id
	}
	page, err := h.accessLog.List(r.Context(), q)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list access log", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *AdminHandler) GetMaintenance(w http.ResponseWriter, r *http.Request) {
	state, err := h.maintenance.State(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "maintenance state unavailable", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

func (h *AdminHandler) PutMaintenance(w http.ResponseWriter, r *http.Request) {
	var in maintenanceRequest
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if in.Enabled {
		if in.EndTime != nil && !in.EndTime.After(time.Now()) {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "end_time must be in the future", map[string]string{"field": "end_time"})
			return
		}
		if err := h.maintenance.Enable(r.Context(), in.EndTime); err != nil {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to enable maintenance", nil)
			return
		}
		observability.Audit(r, "maintenance.enabled", "actor", actor(r))
	} else {
		ended, err := h.maintenance.Disable(r.Context())
		if err != nil {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to disable maintenance", nil)
			return
		}
		observability.Audit(r, "maintenance.disabled", "actor", actor(r), "sessions_ended", ended)
	}
	h.GetMaintenance(w, r)
}
