package domain

import "time"

// AccessToken is a maintenance bypass grant. The bearer token travels in links; the passkey is
// only ever stored as a keyed digest.
type AccessToken struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Token       string     `gorm:"size:64;uniqueIndex;not null" json:"token"`
	PasskeyHash string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	OwnerUserID *uint      `gorm:"index" json:"owner_user_id,omitempty"`
	Name        string     `gorm:"size:255" json:"name"`
	Email       string     `gorm:"size:255" json:"email"`
	Description string     `gorm:"type:text" json:"description"`
	CreatedBy   string     `gorm:"size:255" json:"created_by"`
	MaxSessions int        `gorm:"not null;default:1" json:"max_sessions"`
	IsActive    bool       `gorm:"index;not null;default:true" json:"is_active"`
	UsageCount  int64      `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

func (AccessToken) TableName() string { return "special_access_tokens" }
