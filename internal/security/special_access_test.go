package security

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateTokenShape(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		if !IsWellFormedToken(tok) {
			t.Fatalf("generated token is not well formed: %q", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestIsWellFormedToken(t *testing.T) {
	cases := map[string]bool{
		strings.Repeat("a", 64):         true,
		strings.Repeat("F", 64):         true,
		strings.Repeat("a", 63):         false,
		strings.Repeat("a", 65):         false,
		strings.Repeat("g", 64):         false,
		"":                              false,
		strings.Repeat("a", 60) + "'--": false,
	}
	for in, want := range cases {
		if got := IsWellFormedToken(in); got != want {
			t.Fatalf("IsWellFormedToken(%q)=%v want %v", in, got, want)
		}
	}
}

func TestGeneratePasskeyFormat(t *testing.T) {
	for i := 0; i < 64; i++ {
		pk, err := GeneratePasskey()
		if err != nil {
			t.Fatalf("generate passkey: %v", err)
		}
		if len(pk) != 19 || strings.Count(pk, "-") != 3 {
			t.Fatalf("unexpected passkey format: %q", pk)
		}
		normalized, err := NormalizePasskey(pk)
		if err != nil || normalized != pk {
			t.Fatalf("generated passkey must already be canonical: %q -> %q (%v)", pk, normalized, err)
		}
	}
}

func TestNormalizePasskey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ab3d-77zq-2k9m-qrtt", want: "AB3D-77ZQ-2K9M-QRTT"},
		{in: "AB3D77ZQ2K9MQRTT", want: "AB3D-77ZQ-2K9M-QRTT"},
		{in: " ab3d 77zq 2k9m qrtt ", want: "AB3D-77ZQ-2K9M-QRTT"},
		{in: "AB3D-77ZQ-2K9M-QRT", wantErr: true},
		{in: "AB3D-77ZQ-2K9M-QRT0", wantErr: true},
		{in: "AB3D-77ZQ-2K9M-QRTI", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizePasskey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizePasskey(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizePasskey(%q)=%q,%v want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestPasskeyHasherMatches(t *testing.T) {
	h, err := NewPasskeyHasher("pepper-for-tests-only")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	digest, err := h.Digest("AB3D-77ZQ-2K9M-QRTT")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if strings.Contains(digest, "AB3D") {
		t.Fatal("digest must not contain the passkey")
	}
	if !h.Matches("ab3d77zq2k9mqrtt", digest) {
		t.Fatal("expected normalized passkey to match")
	}
	if h.Matches("AB3D-77ZQ-2K9M-QRTA", digest) {
		t.Fatal("expected different passkey to be rejected")
	}

	other, _ := NewPasskeyHasher("another-pepper-value")
	if other.Matches("AB3D-77ZQ-2K9M-QRTT", digest) {
		t.Fatal("digest must depend on the pepper")
	}
	if _, err := NewPasskeyHasher("  "); err == nil {
		t.Fatal("expected error for empty pepper")
	}
}

func TestJWTManagerAdminToken(t *testing.T) {
	mgr := NewJWTManager("issuer", "aud", strings.Repeat("s", 32))
	raw, err := mgr.SignAdminToken("ops", []string{RoleAdmin}, nil, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := mgr.ParseAdminToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops" || !claims.CanBypassMaintenance() || !claims.HasPermission(PermissionWrite) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	viewer, _ := mgr.SignAdminToken("viewer", nil, []string{PermissionRead}, time.Minute)
	vc, err := mgr.ParseAdminToken(viewer)
	if err != nil {
		t.Fatalf("parse viewer: %v", err)
	}
	if vc.CanBypassMaintenance() || vc.HasPermission(PermissionWrite) || !vc.HasPermission(PermissionRead) {
		t.Fatalf("unexpected viewer permissions: %+v", vc)
	}

	other := NewJWTManager("issuer", "aud", strings.Repeat("x", 32))
	if _, err := other.ParseAdminToken(raw); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
	expired, _ := mgr.SignAdminToken("ops", []string{RoleAdmin}, nil, -time.Minute)
	if _, err := mgr.ParseAdminToken(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func FuzzNormalizePasskeyRobustness(f *testing.F) {
	f.Add("AB3D-77ZQ-2K9M-QRTT")
	f.Add("ab3d77zq2k9mqrtt")
	f.Add("")
	f.Add("ðŸ”¥ðŸ”¥")
	f.Add(strings.Repeat("A", 4096))

	f.Fuzz(func(t *testing.T, raw string) {
		got, err := NormalizePasskey(raw)
		if err != nil {
			return
		}
		if len(got) != 19 {
			t.Fatalf("canonical passkey must be 19 chars, got %q", got)
		}
		again, err := NormalizePasskey(got)
		if err != nil || again != got {
			t.Fatalf("normalization must be idempotent: %q -> %q (%v)", got, again, err)
		}
	})
}
