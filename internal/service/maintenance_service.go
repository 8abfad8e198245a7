package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
)

// MaintenanceState is a snapshot of the two maintenance settings.
type MaintenanceState struct {
	Enabled bool       `json:"enabled"`
	EndTime *time.Time `json:"end_time,omitempty"`
}

// SessionExpiry is the expiry assigned to a session verified at now. An end time that has
// already passed yields no expiry rather than an instantly dead session.
func (s MaintenanceState) SessionExpiry(now time.Time) *time.Time {
	if s.EndTime == nil || !s.EndTime.After(now) {
		return nil
	}
	end := s.EndTime.UTC()
	return &end
}

var legacyEndTimeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04"}

// MaintenanceService reads maintenance state straight from the settings table on every call.
type MaintenanceService struct {
	settings repository.SettingRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
}

func NewMaintenanceService(settings repository.SettingRepository, sessions repository.SessionRepository, logger *slog.Logger) *MaintenanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{settings: settings, sessions: sessions, logger: logger}
}

func (s *MaintenanceService) State(ctx context.Context) (MaintenanceState, error) {
	var state MaintenanceState
	enabled, err := s.settings.Get(ctx, domain.SettingMaintenanceEnabled)
	if err != nil && !errors.Is(err, repository.ErrSettingNotFound) {
		return state, fmt.Errorf("read maintenance flag: %w", err)
	}
	state.Enabled = parseFlag(enabled)

	rawEnd, err := s.settings.Get(ctx, domain.SettingMaintenanceEndTime)
	if err != nil && !errors.Is(err, repository.ErrSettingNotFound) {
		return state, fmt.Errorf("read maintenance end time: %w", err)
	}
	if end, ok := parseEndTime(rawEnd); ok {
		state.EndTime = &end
	} else if strings.TrimSpace(rawEnd) != "" {
		s.logger.WarnContext(ctx, "ignoring unparseable maintenance end time", "value", rawEnd)
	}
	return state, nil
}

func (s *MaintenanceService) IsActive(ctx context.Context) (bool, error) {
	state, err := s.State(ctx)
	return state.Enabled, err
}

func (s *MaintenanceService) EndTime(ctx context.Context) (*time.Time, error) {
	state, err := s.State(ctx)
	return state.EndTime, err
}

// Enable turns maintenance on with an optional scheduled end.
func (s *MaintenanceService) Enable(ctx context.Context, end *time.Time) error {
	values := map[string]string{
		domain.SettingMaintenanceEnabled: "1",
		domain.SettingMaintenanceEndTime: "",
	}
	if end != nil {
		values[domain.SettingMaintenanceEndTime] = end.UTC().Format(time.RFC3339)
	}
	if err := s.settings.SetMany(ctx, values); err != nil {
		return fmt.Errorf("enable maintenance: %w", err)
	}
	s.logger.InfoContext(ctx, "maintenance enabled", "end_time", values[domain.SettingMaintenanceEndTime])
	return nil
}

// Disable turns maintenance off and ends every special-access session.
func (s *MaintenanceService) Disable(ctx context.Context) (int64, error) {
	if err := s.settings.SetMany(ctx, map[string]string{
		domain.SettingMaintenanceEnabled: "0",
		domain.SettingMaintenanceEndTime: "",
	}); err != nil {
		return 0, fmt.Errorf("disable maintenance: %w", err)
	}
	ended, err := s.sessions.DeactivateAll(ctx, repository.EndReasonMaintenance)
	if err != nil {
		return 0, fmt.Errorf("end special access sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "maintenance disabled", "sessions_ended", ended)
	return ended, nil
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseEndTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range legacyEndTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
