package security

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"

	PermissionBypass = "special_access:bypass"
	PermissionRead   = "special_access:read"
	PermissionWrite  = "special_access:write"

	tokenTypeAdmin = "admin_access"
)

// AdminPermissions is the permission set granted to the admin role.
var AdminPermissions = []string{PermissionBypass, PermissionRead, PermissionWrite}

type Claims struct {
	TokenType   string   `json:"token_type"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role, case-insensitively.
func (c *Claims) HasRole(role string) bool {
	return slices.ContainsFunc(c.Roles, func(r string) bool { return strings.EqualFold(strings.TrimSpace(r), role) })
}

// HasPermission treats the admin role as holding every admin permission.
func (c *Claims) HasPermission(perm string) bool {
	if c.HasRole(RoleAdmin) && slices.Contains(AdminPermissions, perm) {
		return true
	}
	return slices.ContainsFunc(c.Permissions, func(p string) bool { return strings.EqualFold(strings.TrimSpace(p), perm) })
}

// CanBypassMaintenance reports whether the bearer may pass the gate without a token.
func (c *Claims) CanBypassMaintenance() bool {
	return c.HasRole(RoleAdmin) || c.HasPermission(PermissionBypass)
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

func (m *JWTManager) SignAdminToken(subject string, roles, perms []string, ttl time.Duration) (string, error) {
	return m.SignAdminTokenWithJTI(subject, roles, perms, ttl, uuid.NewString())
}

func (m *JWTManager) SignAdminTokenWithJTI(subject string, roles, perms []string, ttl time.Duration, jti string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	if jti == "" {
		jti = uuid.NewString()
	}
	now := time.Now()
	claims := Claims{
		TokenType:   tokenTypeAdmin,
		Roles:       roles,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *JWTManager) ParseAdminToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenTypeAdmin {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	return claims, nil
}
