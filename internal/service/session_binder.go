package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

var (
	ErrInvalidCredentials       = errors.New("invalid passkey or revoked access")
	ErrSpecialAccessNotRequired = errors.New("special access not required")
	ErrSessionLimitReached      = repository.ErrSessionLimitReached
	ErrSessionNotFound          = repository.ErrSessionNotFound
)

type VerifyRequest struct {
	Token     string
	Passkey   string
	SessionID string
	IP        string
	UserAgent string
}

type VerifyResult struct {
	TokenID   uint       `json:"token_id"`
	Name      string     `json:"name"`
	SessionID string     `json:"session_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SessionBinder turns a verified token/passkey pair into a session bound to one browser.
type SessionBinder struct {
	tokens      repository.TokenRepository
	sessions    repository.SessionRepository
	maintenance MaintenanceReader
	hasher      *security.PasskeyHasher
	accessLog   AccessRecorder
	logger      *slog.Logger
	now         func() time.Time
}

func NewSessionBinder(tokens repository.TokenRepository, sessions repository.SessionRepository, maintenance MaintenanceReader, hasher *security.PasskeyHasher, accessLog AccessRecorder, logger *slog.Logger) *SessionBinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionBinder{
		tokens:      tokens,
		sessions:    sessions,
		maintenance: maintenance,
		hasher:      hasher,
		accessLog:   accessLog,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (b *SessionBinder) VerifyPasskey(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, errors.New("web session id is required")
	}
	token := strings.ToLower(strings.TrimSpace(req.Token))
	if !security.IsWellFormedToken(token) {
		observability.RecordPasskeyVerification(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	row, err := b.tokens.FindByToken(ctx, token)
	if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		b.logger.ErrorContext(ctx, "token lookup failed during verification", "error", err)
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if row == nil || !row.IsActive || !b.hasher.Matches(req.Passkey, row.PasskeyHash) {
		if row != nil {
			b.logger.InfoContext(ctx, "passkey rejected", "token_id", row.ID, "token_active", row.IsActive)
			b.accessLog.Record(ctx, AccessEvent{TokenID: &row.ID, SessionID: req.SessionID, Action: domain.ActionPasskeyRejected, IP: req.IP, UserAgent: req.UserAgent})
		}
		observability.RecordPasskeyVerification(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	state, err := b.maintenance.State(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "maintenance state unavailable during verification", "error", err)
		return nil, err
	}
	if !state.Enabled {
		observability.RecordPasskeyVerification(ctx, "not_required")
		return nil, ErrSpecialAccessNotRequired
	}
	expiresAt := state.SessionExpiry(b.now())

	sess, err := b.sessions.Open(ctx, repository.OpenSessionParams{
		TokenID:   row.ID,
		SessionID: req.SessionID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		ExpiresAt: expiresAt,
	})
	switch {
	case errors.Is(err, repository.ErrSessionLimitReached):
		observability.RecordPasskeyVerification(ctx, "limit_reached")
		b.logger.InfoContext(ctx, "session ceiling reached", "token_id", row.ID, "max_sessions", row.MaxSessions)
		return nil, ErrSessionLimitReached
	case errors.Is(err, repository.ErrTokenInactive), errors.Is(err, repository.ErrTokenNotFound):
		observability.RecordPasskeyVerification(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	case err != nil:
		b.logger.ErrorContext(ctx, "session open failed", "token_id", row.ID, "error", err)
		return nil, fmt.Errorf("open session: %w", err)
	}

	b.accessLog.Record(ctx, AccessEvent{TokenID: &row.ID, SessionID: req.SessionID, Action: domain.ActionPasskeyVerified, IP: req.IP, UserAgent: req.UserAgent})
	observability.RecordPasskeyVerification(ctx, "success")
	observability.RecordSessionLifecycle(ctx, "opened")
	return &VerifyResult{TokenID: row.ID, Name: row.Name, SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt}, nil
}

// HasActiveSession re-validates the browser's verified flag against the session row. A stale
// row is deactivated once and the local flags are cleared; later calls are no-ops.
func (b *SessionBinder) HasActiveSession(ctx context.Context, ws *websession.Session) bool {
	if !ws.IsVerified() {
		return false
	}
	sa := ws.SpecialAccess
	if sa.ExpiresAt == nil || sa.ExpiresAt.After(b.now()) {
		row, err := b.sessions.FindActiveBySessionID(ctx, ws.ID, sa.TokenID)
		if err == nil {
			if err := b.sessions.Touch(ctx, row.ID); err != nil {
				b.logger.WarnContext(ctx, "session activity update failed", "session_id", row.ID, "error", err)
			}
			return true
		}
		if !errors.Is(err, repository.ErrSessionNotFound) {
			b.logger.ErrorContext(ctx, "session lookup failed", "error", err)
			return false
		}
	}

	ended, err := b.sessions.DeactivateBySessionID(ctx, ws.ID, sa.TokenID, repository.EndReasonExpired)
	if err != nil {
		b.logger.ErrorContext(ctx, "stale session deactivation failed", "error", err)
		return false
	}
	if ended > 0 {
		tokenID := sa.TokenID
		b.accessLog.Record(ctx, AccessEvent{TokenID: &tokenID, SessionID: ws.ID, Action: domain.ActionSessionExpired})
		observability.RecordSessionLifecycle(ctx, "expired")
	}
	ws.ClearSpecialAccess()
	return false
}

// TerminateSession is an administrative forced logout of one session row.
func (b *SessionBinder) TerminateSession(ctx context.Context, id uint, actor string) error {
	row, err := b.sessions.FindByID(ctx, id)
	if err != nil {
		return err
	}
	changed, err := b.sessions.DeactivateByID(ctx, id, repository.EndReasonTerminated)
	if err != nil {
		b.logger.ErrorContext(ctx, "session terminate failed", "session_id", id, "error", err)
		return err
	}
	if changed {
		b.accessLog.Record(ctx, AccessEvent{TokenID: &row.TokenID, SessionID: row.SessionID, Action: domain.ActionSessionTerminated})
		observability.RecordSessionLifecycle(ctx, "terminated")
		b.logger.InfoContext(ctx, "special access session terminated", "session_id", id, "token_id", row.TokenID, "actor", actor)
	}
	return nil
}

func (b *SessionBinder) ListSessions(ctx context.Context, tokenID uint) ([]domain.SpecialAccessSession, error) {
	if _, err := b.tokens.FindByID(ctx, tokenID); err != nil {
		return nil, err
	}
	return b.sessions.ListByToken(ctx, tokenID)
}

// SweepExpired bulk-deactivates expired sessions. Lazy checks in HasActiveSession stay
// authoritative; this only keeps the table tidy.
func (b *SessionBinder) SweepExpired(ctx context.Context) (int64, error) {
	n, err := b.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if n > 0 {
		b.logger.InfoContext(ctx, "expired special access sessions swept", "count", n)
	}
	return n, nil
}
