package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/domain"

	"gorm.io/gorm"
)

func nowUTC() time.Time { return time.Now().UTC() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

// deactivateSessions ends every active session matched by scope and frees its slot.
func deactivateSessions(scope *gorm.DB, reason string) (int64, error) {
	now := nowUTC()
	res := scope.Model(&domain.SpecialAccessSession{}).
		Where("is_active = ?", true).
		Updates(map[string]any{
			"is_active":    false,
			"slot_key":     nil,
			"ended_at":     now,
			"ended_reason": reason,
		})
	return res.RowsAffected, res.Error
}
