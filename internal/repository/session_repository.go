package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionLimitReached = errors.New("maximum active sessions reached")
	ErrTokenInactive       = errors.New("access token is not active")
)

const (
	EndReasonExpired     = "expired"
	EndReasonRevoked     = "token_revoked"
	EndReasonTerminated  = "terminated"
	EndReasonReplaced    = "reverified"
	EndReasonMaintenance = "maintenance_disabled"
)

type OpenSessionParams struct {
	TokenID   uint
	SessionID string
	IP        string
	UserAgent string
	ExpiresAt *time.Time
}

type SessionRepository interface {
	Open(ctx context.Context, p OpenSessionParams) (*domain.SpecialAccessSession, error)
	FindActiveBySessionID(ctx context.Context, sessionID string, tokenID uint) (*domain.SpecialAccessSession, error)
	FindByID(ctx context.Context, id uint) (*domain.SpecialAccessSession, error)
	ListByToken(ctx context.Context, tokenID uint) ([]domain.SpecialAccessSession, error)
	CountActive(ctx context.Context, tokenID uint) (int64, error)
	Touch(ctx context.Context, id uint) error
	DeactivateBySessionID(ctx context.Context, sessionID string, tokenID uint, reason string) (int64, error)
	DeactivateByID(ctx context.Context, id uint, reason string) (bool, error)
	DeactivateAll(ctx context.Context, reason string) (int64, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

// Open binds a web session to a token while holding the token row. Expired slots of the token
// are released first, then the lowest free slot is claimed through the unique slot key, so two
// concurrent claimants can never both occupy the last slot. The token's usage counter is bumped
// in the same transaction.
func (r *GormSessionRepository) Open(ctx context.Context, p OpenSessionParams) (*domain.SpecialAccessSession, error) {
	var opened *domain.SpecialAccessSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token domain.AccessToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", p.TokenID).First(&token).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		if !token.IsActive {
			return ErrTokenInactive
		}
		now := nowUTC()

		if _, err := deactivateSessions(tx.Where("token_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", token.ID, now), EndReasonExpired); err != nil {
			return err
		}
		if _, err := deactivateSessions(tx.Where("token_id = ? AND session_id = ?", token.ID, p.SessionID), EndReasonReplaced); err != nil {
			return err
		}

		var held []int
		if err := tx.Model(&domain.SpecialAccessSession{}).
			Where("token_id = ? AND is_active = ?", token.ID, true).
			Order("slot ASC").
			Pluck("slot", &held).Error; err != nil {
			return err
		}
		maxSessions := token.MaxSessions
		if maxSessions < 1 {
			maxSessions = 1
		}
		if len(held) >= maxSessions {
			return ErrSessionLimitReached
		}
		slot := lowestFreeSlot(held)
		key := slotKey(token.ID, slot)

		s := &domain.SpecialAccessSession{
			TokenID:      token.ID,
			SessionID:    p.SessionID,
			Slot:         slot,
			SlotKey:      &key,
			IP:           p.IP,
			UserAgent:    p.UserAgent,
			StartedAt:    now,
			LastActivity: now,
			ExpiresAt:    p.ExpiresAt,
			IsActive:     true,
		}
		if err := tx.Create(s).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrSessionLimitReached
			}
			return err
		}
		if err := tx.Model(&domain.AccessToken{}).Where("id = ?", token.ID).
			Updates(map[string]any{
				"usage_count":  gorm.Expr("usage_count + ?", 1),
				"last_used_at": now,
			}).Error; err != nil {
			return err
		}
		opened = s
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionLimitReached):
			observability.RecordRepositoryOperation(ctx, "session", "open", "limit_reached")
		case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenInactive):
			observability.RecordRepositoryOperation(ctx, "session", "open", "not_found")
		default:
			observability.RecordRepositoryOperation(ctx, "session", "open", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "open", "success")
	return opened, nil
}

// FindActiveBySessionID returns the active, unexpired session for the web session whose owning
// token is still active.
func (r *GormSessionRepository) FindActiveBySessionID(ctx context.Context, sessionID string, tokenID uint) (*domain.SpecialAccessSession, error) {
	var s domain.SpecialAccessSession
	err := r.db.WithContext(ctx).
		Joins("JOIN special_access_tokens t ON t.id = special_access_sessions.token_id").
		Where("special_access_sessions.session_id = ? AND special_access_sessions.token_id = ?", sessionID, tokenID).
		Where("special_access_sessions.is_active = ? AND t.is_active = ?", true, true).
		Where("special_access_sessions.expires_at IS NULL OR special_access_sessions.expires_at > ?", nowUTC()).
		Order("special_access_sessions.id DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_active_by_session_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_active_by_session_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_active_by_session_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id uint) (*domain.SpecialAccessSession, error) {
	var s domain.SpecialAccessSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListByToken(ctx context.Context, tokenID uint) ([]domain.SpecialAccessSession, error) {
	var sessions []domain.SpecialAccessSession
	err := r.db.WithContext(ctx).Where("token_id = ?", tokenID).
		Order("started_at DESC, id DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_token", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_by_token", "success")
	return sessions, nil
}

func (r *GormSessionRepository) CountActive(ctx context.Context, tokenID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SpecialAccessSession{}).
		Where("token_id = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)", tokenID, true, nowUTC()).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_active", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_active", "success")
	return count, nil
}

func (r *GormSessionRepository) Touch(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&domain.SpecialAccessSession{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("last_activity", nowUTC()).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch", "success")
	return nil
}

func (r *GormSessionRepository) DeactivateBySessionID(ctx context.Context, sessionID string, tokenID uint, reason string) (int64, error) {
	n, err := deactivateSessions(r.db.WithContext(ctx).Where("session_id = ? AND token_id = ?", sessionID, tokenID), reason)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate_by_session_id", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate_by_session_id", "success")
	return n, nil
}

func (r *GormSessionRepository) DeactivateByID(ctx context.Context, id uint, reason string) (bool, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	n, err := deactivateSessions(r.db.WithContext(ctx).Where("id = ?", id), reason)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate_by_id", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate_by_id", "success")
	return n > 0, nil
}

func (r *GormSessionRepository) DeactivateAll(ctx context.Context, reason string) (int64, error) {
	n, err := deactivateSessions(r.db.WithContext(ctx).Where("1 = 1"), reason)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate_all", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate_all", "success")
	return n, nil
}

func (r *GormSessionRepository) SweepExpired(ctx context.Context) (int64, error) {
	n, err := deactivateSessions(r.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", nowUTC()), EndReasonExpired)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "sweep_expired", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "sweep_expired", "success")
	return n, nil
}

func lowestFreeSlot(held []int) int {
	slot := 1
	for _, h := range held {
		if h == slot {
			slot++
		} else if h > slot {
			break
		}
	}
	return slot
}

func slotKey(tokenID uint, slot int) string { return fmt.Sprintf("%d:%d", tokenID, slot) }
