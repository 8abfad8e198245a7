package domain

import "time"

const (
	ActionPasskeyVerified   = "passkey_verified"
	ActionPasskeyRejected   = "passkey_rejected"
	ActionPageAccess        = "page_access"
	ActionTokenRevoked      = "token_revoked"
	ActionTokenReactivated  = "token_reactivated"
	ActionSessionExpired    = "session_expired"
	ActionSessionTerminated = "session_terminated"
)

// AccessLogEntry is an append-only audit row.
type AccessLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TokenID   *uint     `gorm:"index" json:"token_id,omitempty"`
	SessionID string    `gorm:"size:128;index" json:"session_id,omitempty"`
	Action    string    `gorm:"size:64;index;not null" json:"action"`
	PageURL   string    `gorm:"size:2048" json:"page_url,omitempty"`
	IP        string    `gorm:"size:64" json:"ip"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AccessLogEntry) TableName() string { return "special_access_logs" }
