package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrTokenNotFound = errors.New("access token not found")
	ErrTokenConflict = errors.New("access token conflicts with an existing token")
)

// TokenWithSessions is an AccessToken plus its count of active, unexpired sessions.
type TokenWithSessions struct {
	domain.AccessToken
	ActiveSessions int64 `json:"active_sessions"`
}

type TokenRepository interface {
	Create(ctx context.Context, t *domain.AccessToken) error
	FindByID(ctx context.Context, id uint) (*domain.AccessToken, error)
	FindByToken(ctx context.Context, token string) (*domain.AccessToken, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	PasskeyHashExists(ctx context.Context, passkeyHash string) (bool, error)
	ListWithActiveSessions(ctx context.Context) ([]TokenWithSessions, error)
	SetActive(ctx context.Context, id uint, active bool) (bool, error)
	Revoke(ctx context.Context, id uint, reason string) (int64, error)
	DeleteUnknown(ctx context.Context) (int64, error)
}

type GormTokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) TokenRepository { return &GormTokenRepository{db: db} }

func (r *GormTokenRepository) Create(ctx context.Context, t *domain.AccessToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(ctx, "token", "create", "conflict")
			return ErrTokenConflict
		}
		observability.RecordRepositoryOperation(ctx, "token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "token", "create", "success")
	return nil
}

func (r *GormTokenRepository) FindByID(ctx context.Context, id uint) (*domain.AccessToken, error) {
	var t domain.AccessToken
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "token", "find_by_id", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "token", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "token", "find_by_id", "success")
	return &t, nil
}

func (r *GormTokenRepository) FindByToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "token", "find_by_token", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "token", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "token", "find_by_token", "success")
	return &t, nil
}

func (r *GormTokenRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	return r.exists(ctx, "token_exists", "token = ?", token)
}

func (r *GormTokenRepository) PasskeyHashExists(ctx context.Context, passkeyHash string) (bool, error) {
	return r.exists(ctx, "passkey_hash_exists", "passkey_hash = ?", passkeyHash)
}

func (r *GormTokenRepository) exists(ctx context.Context, op, query string, arg any) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AccessToken{}).Where(query, arg).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "token", op, "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "token", op, "success")
	return count > 0, nil
}

func (r *GormTokenRepository) ListWithActiveSessions(ctx context.Context) ([]TokenWithSessions, error) {
	now := nowUTC()
	active := r.db.Model(&domain.SpecialAccessSession{}).
		Select("token_id, COUNT(*) AS active_sessions").
		Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now).
		Group("token_id")

	var rows []TokenWithSessions
	err := r.db.WithContext(ctx).Model(&domain.AccessToken{}).
		Select("special_access_tokens.*, COALESCE(s.active_sessions, 0) AS active_sessions").
		Joins("LEFT JOIN (?) AS s ON s.token_id = special_access_tokens.id", active).
		Order("special_access_tokens.created_at DESC, special_access_tokens.id DESC").
		Scan(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "token", "list_with_active_sessions", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "token", "list_with_active_sessions", "success")
	return rows, nil
}

// SetActive flips the active flag and reports whether the row changed state.
func (r *GormTokenRepository) SetActive(ctx context.Context, id uint, active bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.AccessToken{}).
		Where("id = ? AND is_active = ?", id, !active).
		Updates(map[string]any{"is_active": active, "updated_at": nowUTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "token", "set_active", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return false, err
		}
	}
	observability.RecordRepositoryOperation(ctx, "token", "set_active", "success")
	return res.RowsAffected > 0, nil
}

// Revoke deactivates the token and every one of its sessions in a single transaction and
// returns the number of sessions that were still active.
func (r *GormTokenRepository) Revoke(ctx context.Context, id uint, reason string) (int64, error) {
	var ended int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.AccessToken{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": false, "updated_at": nowUTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenNotFound
		}
		n, err := deactivateSessions(tx.Where("token_id = ?", id), reason)
		ended = n
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			observability.RecordRepositoryOperation(ctx, "token", "revoke", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "token", "revoke", "error")
		}
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "token", "revoke", "success")
	return ended, nil
}

// DeleteUnknown removes placeholder tokens (no name or "Unknown", and no email) together with
// their sessions. Their access log rows stay, detached from the deleted token.
func (r *GormTokenRepository) DeleteUnknown(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&domain.AccessToken{}).
			Where("(name IS NULL OR TRIM(name) = '' OR name = ?) AND (email IS NULL OR TRIM(email) = '')", "Unknown").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("token_id IN ?", ids).Delete(&domain.SpecialAccessSession{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.AccessLogEntry{}).Where("token_id IN ?", ids).
			Update("token_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.AccessToken{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "token", "delete_unknown", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "token", "delete_unknown", "success")
	return deleted, nil
}
