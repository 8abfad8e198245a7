package websession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("web session not found")

// SpecialAccess holds the flags a verified browser carries between requests.
type SpecialAccess struct {
	Verified  bool       `json:"verified"`
	TokenID   uint       `json:"token_id"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Session is the server-side state behind the session cookie.
type Session struct {
	ID            string         `json:"id"`
	CSRFToken     string         `json:"csrf_token"`
	SpecialAccess *SpecialAccess `json:"special_access,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`

	dirty bool
}

func newSession(csrf string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CSRFToken: csrf,
		CreatedAt: time.Now().UTC(),
	}
}

// New returns an unsaved session with a fresh id and CSRF token. It stays unsaved until Keep or
// MarkVerified flags it.
func New(csrf string) *Session { return newSession(csrf) }

// Keep flags the session for persistence, e.g. once its CSRF token has been handed out.
func (s *Session) Keep() { s.dirty = true }

// MarkVerified stores the special-access flags after a successful passkey check.
func (s *Session) MarkVerified(tokenID uint, name string, expiresAt *time.Time) {
	s.SpecialAccess = &SpecialAccess{Verified: true, TokenID: tokenID, Name: name, ExpiresAt: expiresAt}
	s.dirty = true
}

// ClearSpecialAccess drops the special-access flags.
func (s *Session) ClearSpecialAccess() {
	if s.SpecialAccess == nil {
		return
	}
	s.SpecialAccess = nil
	s.dirty = true
}

// IsVerified is the local fast-path check; the bound row must still be re-validated.
func (s *Session) IsVerified() bool {
	return s != nil && s.SpecialAccess != nil && s.SpecialAccess.Verified && s.SpecialAccess.TokenID != 0
}

func (s *Session) Dirty() bool { return s.dirty }

type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, ttl time.Duration) error
}

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
