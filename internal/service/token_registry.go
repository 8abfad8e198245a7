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
)

const (
	DefaultMaxSessions = 1
	MaxSessionsCeiling = 100

	defaultGenerationAttempts = 10
)

var (
	ErrTokenNotFound             = repository.ErrTokenNotFound
	ErrInvalidTokenFormat        = errors.New("invalid token format")
	ErrUniqueGenerationExhausted = errors.New("could not generate a unique credential")
)

type CreateTokenInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	OwnerUserID *uint  `json:"owner_user_id,omitempty"`
	MaxSessions int    `json:"max_sessions"`
}

// CreatedToken carries the only plaintext copy of the passkey that ever leaves the registry.
type CreatedToken struct {
	ID          uint   `json:"id"`
	Token       string `json:"token"`
	Passkey     string `json:"passkey"`
	MaxSessions int    `json:"max_sessions"`
}

type TokenRegistryConfig struct {
	NegativeLookupTTL  time.Duration
	GenerationAttempts int
}

type TokenRegistry struct {
	tokens     repository.TokenRepository
	hasher     *security.PasskeyHasher
	accessLog  AccessRecorder
	negCache   NegativeLookupCache
	cfg        TokenRegistryConfig
	logger     *slog.Logger
	genToken   func() (string, error)
	genPasskey func() (string, error)
}

func NewTokenRegistry(tokens repository.TokenRepository, hasher *security.PasskeyHasher, accessLog AccessRecorder, negCache NegativeLookupCache, cfg TokenRegistryConfig, logger *slog.Logger) *TokenRegistry {
	if negCache == nil {
		negCache = NewNoopNegativeLookupCache()
	}
	if cfg.GenerationAttempts <= 0 {
		cfg.GenerationAttempts = defaultGenerationAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRegistry{
		tokens:     tokens,
		hasher:     hasher,
		accessLog:  accessLog,
		negCache:   negCache,
		cfg:        cfg,
		logger:     logger,
		genToken:   security.GenerateToken,
		genPasskey: security.GeneratePasskey,
	}
}

// CreateToken mints a token/passkey pair. Both secrets are regenerated until they are unused,
// and a unique-index conflict from a concurrent insert restarts the loop.
func (s *TokenRegistry) CreateToken(ctx context.Context, in CreateTokenInput) (*CreatedToken, error) {
	maxSessions := clampMaxSessions(in.MaxSessions)
	for attempt := 0; attempt < s.cfg.GenerationAttempts; attempt++ {
		token, err := s.uniqueToken(ctx)
		if err != nil {
			return nil, err
		}
		passkey, digest, err := s.uniquePasskey(ctx)
		if err != nil {
			return nil, err
		}
		row := &domain.AccessToken{
			Token:       token,
			PasskeyHash: digest,
			OwnerUserID: in.OwnerUserID,
			Name:        strings.TrimSpace(in.Name),
			Email:       strings.TrimSpace(in.Email),
			Description: strings.TrimSpace(in.Description),
			CreatedBy:   strings.TrimSpace(in.CreatedBy),
			MaxSessions: maxSessions,
			IsActive:    true,
		}
		err = s.tokens.Create(ctx, row)
		if errors.Is(err, repository.ErrTokenConflict) {
			s.logger.WarnContext(ctx, "token insert collided, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "token create failed", "error", err)
			return nil, fmt.Errorf("create token: %w", err)
		}
		if err := s.negCache.Forget(ctx); err != nil {
			s.logger.WarnContext(ctx, "negative lookup cache reset failed", "error", err)
		}
		observability.RecordTokenLifecycle(ctx, "created")
		s.logger.InfoContext(ctx, "special access token created", "token_id", row.ID, "created_by", row.CreatedBy, "max_sessions", maxSessions)
		return &CreatedToken{ID: row.ID, Token: token, Passkey: passkey, MaxSessions: maxSessions}, nil
	}
	return nil, ErrUniqueGenerationExhausted
}

func (s *TokenRegistry) uniqueToken(ctx context.Context) (string, error) {
	for i := 0; i < s.cfg.GenerationAttempts; i++ {
		token, err := s.genToken()
		if err != nil {
			return "", err
		}
		exists, err := s.tokens.TokenExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
	return "", ErrUniqueGenerationExhausted
}

func (s *TokenRegistry) uniquePasskey(ctx context.Context) (string, string, error) {
	for i := 0; i < s.cfg.GenerationAttempts; i++ {
		passkey, err := s.genPasskey()
		if err != nil {
			return "", "", err
		}
		digest, err := s.hasher.Digest(passkey)
		if err != nil {
			return "", "", err
		}
		exists, err := s.tokens.PasskeyHashExists(ctx, digest)
		if err != nil {
			return "", "", fmt.Errorf("check passkey uniqueness: %w", err)
		}
		if !exists {
			return passkey, digest, nil
		}
	}
	return "", "", ErrUniqueGenerationExhausted
}

// RevokeToken deactivates the token and all of its sessions.
func (s *TokenRegistry) RevokeToken(ctx context.Context, id uint, actor string) error {
	ended, err := s.tokens.Revoke(ctx, id, repository.EndReasonRevoked)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			s.logger.ErrorContext(ctx, "token revoke failed", "token_id", id, "error", err)
		}
		return err
	}
	s.accessLog.Record(ctx, AccessEvent{TokenID: &id, Action: domain.ActionTokenRevoked})
	observability.RecordTokenLifecycle(ctx, "revoked")
	s.logger.InfoContext(ctx, "special access token revoked", "token_id", id, "actor", actor, "sessions_ended", ended)
	return nil
}

// ReactivateToken re-enables the token. Sessions ended by revocation stay ended.
func (s *TokenRegistry) ReactivateToken(ctx context.Context, id uint, actor string) error {
	if _, err := s.tokens.SetActive(ctx, id, true); err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			s.logger.ErrorContext(ctx, "token reactivate failed", "token_id", id, "error", err)
		}
		return err
	}
	s.accessLog.Record(ctx, AccessEvent{TokenID: &id, Action: domain.ActionTokenReactivated})
	observability.RecordTokenLifecycle(ctx, "reactivated")
	s.logger.InfoContext(ctx, "special access token reactivated", "token_id", id, "actor", actor)
	return nil
}

func (s *TokenRegistry) ListTokens(ctx context.Context) ([]repository.TokenWithSessions, error) {
	rows, err := s.tokens.ListWithActiveSessions(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "token list failed", "error", err)
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return rows, nil
}

func (s *TokenRegistry) CleanupUnknownTokens(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteUnknown(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "token cleanup failed", "error", err)
		return 0, fmt.Errorf("cleanup tokens: %w", err)
	}
	s.logger.InfoContext(ctx, "placeholder tokens removed", "deleted", deleted)
	return deleted, nil
}

// IsTokenActive reports whether token names an existing, active grant. Malformed input is
// rejected before any lookup.
func (s *TokenRegistry) IsTokenActive(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if !security.IsWellFormedToken(token) {
		observability.RecordTokenValidation(ctx, "malformed")
		return false, ErrInvalidTokenFormat
	}
	token = strings.ToLower(token)
	if missing, err := s.negCache.IsKnownMissing(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "negative lookup cache read failed", "error", err)
	} else if missing {
		observability.RecordTokenValidation(ctx, "cached_missing")
		return false, nil
	}
	row, err := s.tokens.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrTokenNotFound) {
		if err := s.negCache.RememberMissing(ctx, token, s.cfg.NegativeLookupTTL); err != nil {
			s.logger.WarnContext(ctx, "negative lookup cache write failed", "error", err)
		}
		observability.RecordTokenValidation(ctx, "not_found")
		return false, nil
	}
	if err != nil {
		observability.RecordTokenValidation(ctx, "error")
		s.logger.ErrorContext(ctx, "token lookup failed", "error", err)
		return false, fmt.Errorf("lookup token: %w", err)
	}
	if !row.IsActive {
		observability.RecordTokenValidation(ctx, "inactive")
		return false, nil
	}
	observability.RecordTokenValidation(ctx, "active")
	return true, nil
}

func clampMaxSessions(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxSessions
	case n > MaxSessionsCeiling:
		return MaxSessionsCeiling
	default:
		return n
	}
}
