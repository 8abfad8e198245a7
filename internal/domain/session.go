package domain

import "time"

// SpecialAccessSession binds one verified browser session to an AccessToken. SlotKey is set
// while the session holds one of the token's MaxSessions slots and cleared on deactivation.
type SpecialAccessSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TokenID      uint       `gorm:"index;not null" json:"token_id"`
	SessionID    string     `gorm:"size:128;index;not null" json:"session_id"`
	Slot         int        `gorm:"not null" json:"slot"`
	SlotKey      *string    `gorm:"size:64;uniqueIndex" json:"-"`
	IP           string     `gorm:"size:64" json:"ip"`
	UserAgent    string     `gorm:"size:512" json:"user_agent"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	LastActivity time.Time  `gorm:"not null" json:"last_activity"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
	IsActive     bool       `gorm:"index;not null;default:true" json:"is_active"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	EndedReason  *string    `gorm:"size:64" json:"ended_reason,omitempty"`
}

func (SpecialAccessSession) TableName() string { return "special_access_sessions" }

// Expired reports whether the session's expiry has passed at now.
func (s *SpecialAccessSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
