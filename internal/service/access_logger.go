package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/events"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
)

type AccessEvent struct {
	TokenID   *uint
	SessionID string
	Action    string
	PageURL   string
	IP        string
	UserAgent string
}

// AccessLogger appends audit rows and forwards them to the event sink. Failures are logged
// and never reach the caller.
type AccessLogger struct {
	repo      repository.AccessLogRepository
	publisher events.Publisher
	logger    *slog.Logger
}

func NewAccessLogger(repo repository.AccessLogRepository, publisher events.Publisher, logger *slog.Logger) *AccessLogger {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogger{repo: repo, publisher: publisher, logger: logger}
}

func (l *AccessLogger) Record(ctx context.Context, ev AccessEvent) {
	entry := &domain.AccessLogEntry{
		TokenID:   ev.TokenID,
		SessionID: ev.SessionID,
		Action:    ev.Action,
		PageURL:   truncate(ev.PageURL, 2048),
		IP:        truncate(ev.IP, 64),
		UserAgent: truncate(ev.UserAgent, 512),
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "access log write failed", "action", ev.Action, "error", err)
	}
	err := l.publisher.Publish(ctx, events.AccessEvent{
		TokenID:    entry.TokenID,
		SessionID:  entry.SessionID,
		Action:     entry.Action,
		PageURL:    entry.PageURL,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		OccurredAt: entry.CreatedAt,
	})
	if err != nil {
		observability.RecordEventPublication(ctx, l.publisher.Name(), "rejected")
		l.logger.WarnContext(ctx, "access event publish failed", "sink", l.publisher.Name(), "action", ev.Action, "error", err)
		return
	}
	observability.RecordEventPublication(ctx, l.publisher.Name(), "accepted")
}

func (l *AccessLogger) List(ctx context.Context, q repository.AccessLogQuery) (repository.PageResult[domain.AccessLogEntry], error) {
	return l.repo.List(ctx, q)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
