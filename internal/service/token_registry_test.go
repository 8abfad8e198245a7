package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

func TestCreateTokenProducesUniqueCredentials(t *testing.T) {
	f := newServiceFixture(t)
	tokens := map[string]struct{}{}
	passkeys := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		c := f.createToken(t, 0)
		if c.MaxSessions != DefaultMaxSessions {
			t.Fatalf("expected default max sessions, got %d", c.MaxSessions)
		}
		if !security.IsWellFormedToken(c.Token) {
			t.Fatalf("malformed token %q", c.Token)
		}
		if _, err := security.NormalizePasskey(c.Passkey); err != nil {
			t.Fatalf("malformed passkey %q", c.Passkey)
		}
		if _, dup := tokens[c.Token]; dup {
			t.Fatal("duplicate token")
		}
		if _, dup := passkeys[c.Passkey]; dup {
			t.Fatal("duplicate passkey")
		}
		tokens[c.Token] = struct{}{}
		passkeys[c.Passkey] = struct{}{}
	}

	var rows []domain.AccessToken
	if err := f.db.Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	for _, row := range rows {
		if _, leaked := passkeys[row.PasskeyHash]; leaked || strings.Contains(row.PasskeyHash, "-") {
			t.Fatalf("passkey stored in cleartext: %q", row.PasskeyHash)
		}
	}
}

func TestCreateTokenRegeneratesCollidingPasskey(t *testing.T) {
	f := newServiceFixture(t)
	sequence := []string{"AAAA-BBBB-CCCC-DDDD", "AAAA-BBBB-CCCC-DDDD", "EEEE-FFFF-GGGG-HHHH"}
	calls := 0
	f.registry.genPasskey = func() (string, error) {
		pk := sequence[calls]
		calls++
		return pk, nil
	}

	first := f.createToken(t, 1)
	second := f.createToken(t, 1)
	if first.Passkey == second.Passkey {
		t.Fatalf("expected distinct passkeys, both %q", first.Passkey)
	}
	if calls != 3 {
		t.Fatalf("expected a retry on collision, generator called %d times", calls)
	}
}

func TestCreateTokenGivesUpWhenGeneratorKeepsColliding(t *testing.T) {
	f := newServiceFixture(t)
	f.registry.genPasskey = func() (string, error) { return "AAAA-BBBB-CCCC-DDDD", nil }
	f.createToken(t, 1)

	_, err := f.registry.CreateToken(context.Background(), CreateTokenInput{Name: "again"})
	if !errors.Is(err, ErrUniqueGenerationExhausted) {
		t.Fatalf("expected ErrUniqueGenerationExhausted, got %v", err)
	}
}

func TestCreateTokenClampsMaxSessions(t *testing.T) {
	f := newServiceFixture(t)
	if c := f.createToken(t, 5000); c.MaxSessions != MaxSessionsCeiling {
		t.Fatalf("expected clamp to %d, got %d", MaxSessionsCeiling, c.MaxSessions)
	}
}

func TestIsTokenActiveRejectsMalformedWithoutLookup(t *testing.T) {
	f := newServiceFixture(t)
	for _, bad := range []string{"", "abc", strings.Repeat("z", 64), strings.Repeat("a", 65), "' OR 1=1 --"} {
		ok, err := f.registry.IsTokenActive(context.Background(), bad)
		if ok || !errors.Is(err, ErrInvalidTokenFormat) {
			t.Fatalf("IsTokenActive(%q) = %v, %v", bad, ok, err)
		}
	}
	if n := f.tokens.findByToken.Load(); n != 0 {
		t.Fatalf("malformed tokens must not reach the store, got %d lookups", n)
	}
}

func TestIsTokenActiveStatesAndNegativeCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.createToken(t, 1)

	ok, err := f.registry.IsTokenActive(ctx, c.Token)
	if err != nil || !ok {
		t.Fatalf("expected active token, got %v %v", ok, err)
	}
	ok, _ = f.registry.IsTokenActive(ctx, strings.ToUpper(c.Token))
	if !ok {
		t.Fatal("token lookup should be case-insensitive")
	}

	unknown := strings.Repeat("0", 64)
	before := f.tokens.findByToken.Load()
	for i := 0; i < 3; i++ {
		if ok, err := f.registry.IsTokenActive(ctx, unknown); ok || err != nil {
			t.Fatalf("expected unknown token to be inactive, got %v %v", ok, err)
		}
	}
	if n := f.tokens.findByToken.Load() - before; n != 1 {
		t.Fatalf("expected one store lookup for repeated unknown token, got %d", n)
	}

	if err := f.registry.RevokeToken(ctx, c.ID, "ops"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := f.registry.IsTokenActive(ctx, c.Token); ok {
		t.Fatal("revoked token must be inactive immediately")
	}
}

func TestRevokeAndReactivateAreLogged(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.createToken(t, 1)

	if err := f.registry.RevokeToken(ctx, c.ID, "ops"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.registry.ReactivateToken(ctx, c.ID, "ops"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if n := f.countActions(t, c.ID, domain.ActionTokenRevoked); n != 1 {
		t.Fatalf("expected 1 token_revoked entry, got %d", n)
	}
	if n := f.countActions(t, c.ID, domain.ActionTokenReactivated); n != 1 {
		t.Fatalf("expected 1 token_reactivated entry, got %d", n)
	}
	if err := f.registry.RevokeToken(ctx, 9999, "ops"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if err := f.registry.ReactivateToken(ctx, 9999, "ops"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if got := f.publisher.Events(); len(got) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(got))
	}
}

func TestListTokensAndCleanup(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.createToken(t, 1)
	if _, err := f.registry.CreateToken(ctx, CreateTokenInput{Name: "Unknown"}); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}

	rows, err := f.registry.ListTokens(ctx)
	if err != nil || len(rows) != 2 {
		t.Fatalf("list: %d rows, err=%v", len(rows), err)
	}
	deleted, err := f.registry.CleanupUnknownTokens(ctx)
	if err != nil || deleted != 1 {
		t.Fatalf("cleanup: deleted=%d err=%v", deleted, err)
	}
}
