package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// TokenBytes is the entropy of a bearer token; its hex form is twice as long.
	TokenBytes  = 32
	TokenLength = TokenBytes * 2

	// PasskeyAlphabet omits I, O, 0 and 1.
	PasskeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passkeyGroups   = 4
	passkeyGroupLen = 4
	PasskeySymbols  = passkeyGroups * passkeyGroupLen
)

var ErrInvalidPasskeyFormat = errors.New("invalid passkey format")

// GenerateToken returns a 64-character lowercase hex bearer token.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormedToken reports whether raw has the exact shape of a bearer token.
func IsWellFormedToken(raw string) bool {
	if len(raw) != TokenLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// GeneratePasskey returns a passkey formatted XXXX-XXXX-XXXX-XXXX. The alphabet has 32
// symbols so masking a random byte keeps the distribution uniform.
func GeneratePasskey() (string, error) {
	b := make([]byte, PasskeySymbols)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate passkey: %w", err)
	}
	symbols := make([]byte, PasskeySymbols)
	for i, v := range b {
		symbols[i] = PasskeyAlphabet[int(v)&(len(PasskeyAlphabet)-1)]
	}
	return formatPasskey(string(symbols)), nil
}

// NormalizePasskey uppercases the input, drops separators and whitespace, and returns the
// canonical grouped form.
func NormalizePasskey(raw string) (string, error) {
	var sb strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r < 128 && strings.IndexByte(PasskeyAlphabet, byte(r)) >= 0:
			sb.WriteRune(r)
		default:
			return "", ErrInvalidPasskeyFormat
		}
	}
	if sb.Len() != PasskeySymbols {
		return "", ErrInvalidPasskeyFormat
	}
	return formatPasskey(sb.String()), nil
}

func formatPasskey(symbols string) string {
	groups := make([]string, 0, passkeyGroups)
	for i := 0; i < len(symbols); i += passkeyGroupLen {
		groups = append(groups, symbols[i:i+passkeyGroupLen])
	}
	return strings.Join(groups, "-")
}

// PasskeyHasher derives keyed digests of passkeys. The HMAC key is expanded from the
// configured pepper so the stored digest is useless without the server secret.
type PasskeyHasher struct {
	key []byte
}

func NewPasskeyHasher(pepper string) (*PasskeyHasher, error) {
	if strings.TrimSpace(pepper) == "" {
		return nil, errors.New("passkey pepper is required")
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(pepper), nil, []byte("special-access passkey digest v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive passkey key: %w", err)
	}
	return &PasskeyHasher{key: key}, nil
}

// Digest hashes the canonical form of passkey.
func (h *PasskeyHasher) Digest(passkey string) (string, error) {
	canonical, err := NormalizePasskey(passkey)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Matches compares passkey against a stored digest in constant time.
func (h *PasskeyHasher) Matches(passkey, digest string) bool {
	got, err := h.Digest(passkey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(got), []byte(digest))
}

// Fingerprint is a short non-reversible label for a secret, used to key throttles and logs.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:8])
}
