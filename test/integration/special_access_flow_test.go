package integration

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

type createdToken struct {
	ID          uint   `json:"id"`
	Token       string `json:"token"`
	Passkey     string `json:"passkey"`
	MaxSessions int    `json:"max_sessions"`
}

type sessionView struct {
	ID        uint   `json:"id"`
	SessionID string `json:"session_id"`
	IsActive  bool   `json:"is_active"`
}

func createToken(t *testing.T, env *gateTestEnv, name string, maxSessions int) createdToken {
	t.Helper()
	resp, e := env.adminJSON(t, http.MethodPost, "/tokens", map[string]any{"name": name, "email": strings.ToLower(name) + "@example.com", "max_sessions": maxSessions})
	if resp.StatusCode != http.StatusCreated || !e.Success {
		t.Fatalf("create token: status=%d env=%+v", resp.StatusCode, e)
	}
	var ct createdToken
	if err := json.Unmarshal(e.Data, &ct); err != nil {
		t.Fatalf("decode created token: %v", err)
	}
	return ct
}

func setMaintenance(t *testing.T, env *gateTestEnv, enabled bool) {
	t.Helper()
	resp, e := env.adminJSON(t, http.MethodPut, "/maintenance", map[string]any{"enabled": enabled})
	if resp.StatusCode != http.StatusOK || !e.Success {
		t.Fatalf("set maintenance=%t: status=%d env=%+v", enabled, resp.StatusCode, e)
	}
}

func activeSessions(t *testing.T, env *gateTestEnv, tokenID uint) int {
	t.Helper()
	resp, e := env.adminJSON(t, http.MethodGet, "/tokens/"+strconv.FormatUint(uint64(tokenID), 10)+"/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions: status=%d", resp.StatusCode)
	}
	var rows []sessionView
	if err := json.Unmarshal(e.Data, &rows); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	n := 0
	for _, s := range rows {
		if s.IsActive {
			n++
		}
	}
	return n
}

func TestSpecialAccessFlowCeilingThenRevocation(t *testing.T) {
	env, closeFn := newGateTestServer(t)
	defer closeFn()

	tok := createToken(t, env, "Avery", 1)
	setMaintenance(t, env, true)

	alice := newBrowser(t)
	resp, _ := get(t, alice, env.baseURL+"/pricing")
	expectRedirect(t, resp, "/maintenance")

	resp, body := get(t, alice, env.baseURL+"/maintenance")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "back soon") {
		t.Fatalf("expected maintenance page, got %d", resp.StatusCode)
	}

	resp, body = get(t, alice, env.baseURL+"/special-access/validate?action=validate_token&token="+url.QueryEscape(tok.Token))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"valid":true`) {
		t.Fatalf("expected token valid, got %d %s", resp.StatusCode, body)
	}

	resp, body = verifyPasskey(t, alice, env.baseURL, tok.Token, "AAAA-BBBB-CCCC-DDDD")
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Invalid passkey") {
		t.Fatalf("expected invalid credentials, got %d", resp.StatusCode)
	}

	resp, _ = verifyPasskey(t, alice, env.baseURL, tok.Token, tok.Passkey)
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Refresh"), "url=/") {
		t.Fatalf("expected verified page with refresh, got %d refresh=%q", resp.StatusCode, resp.Header.Get("Refresh"))
	}
	resp, body = get(t, alice, env.baseURL+"/pricing")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Welcome") {
		t.Fatalf("expected verified browser through the gate, got %d", resp.StatusCode)
	}

	bob := newBrowser(t)
	resp, body = verifyPasskey(t, bob, env.baseURL, tok.Token, tok.Passkey)
	if resp.StatusCode != http.StatusConflict || !strings.Contains(body, "Maximum active sessions") {
		t.Fatalf("expected session limit for second browser, got %d", resp.StatusCode)
	}
	if n := activeSessions(t, env, tok.ID); n != 1 {
		t.Fatalf("expected exactly one active session, got %d", n)
	}

	resp, e := env.adminJSON(t, http.MethodPost, "/tokens/"+strconv.FormatUint(uint64(tok.ID), 10)+"/revoke", nil)
	if resp.StatusCode != http.StatusOK || !e.Success {
		t.Fatalf("revoke: status=%d", resp.StatusCode)
	}
	resp, _ = get(t, alice, env.baseURL+"/pricing")
	expectRedirect(t, resp, "/maintenance")

	resp, body = get(t, bob, env.baseURL+"/special-access/validate?action=validate_token&token="+url.QueryEscape(tok.Token))
	if resp.StatusCode != http.StatusOK || strings.Contains(body, `"valid":true`) {
		t.Fatalf("expected revoked token invalid, got %d %s", resp.StatusCode, body)
	}
	if n := activeSessions(t, env, tok.ID); n != 0 {
		t.Fatalf("expected revocation to end sessions, got %d active", n)
	}
}

func TestSpecialAccessFlowMaintenanceDisabled(t *testing.T) {
	env, closeFn := newGateTestServer(t)
	defer closeFn()

	tok := createToken(t, env, "Rowan", 2)

	visitor := newBrowser(t)
	resp, body := get(t, visitor, env.baseURL+"/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Welcome") {
		t.Fatalf("expected open site without maintenance, got %d", resp.StatusCode)
	}
	resp, body = verifyPasskey(t, visitor, env.baseURL, tok.Token, tok.Passkey)
	if resp.StatusCode != http.StatusConflict || !strings.Contains(body, "not active") {
		t.Fatalf("expected not-required response, got %d", resp.StatusCode)
	}
	if n := activeSessions(t, env, tok.ID); n != 0 {
		t.Fatalf("expected no session created, got %d", n)
	}
}

func TestSpecialAccessFlowDisableEndsSessions(t *testing.T) {
	env, closeFn := newGateTestServer(t)
	defer closeFn()

	tok := createToken(t, env, "Quinn", 2)
	setMaintenance(t, env, true)

	visitor := newBrowser(t)
	if resp, _ := verifyPasskey(t, visitor, env.baseURL, tok.Token, tok.Passkey); resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status=%d", resp.StatusCode)
	}
	if n := activeSessions(t, env, tok.ID); n != 1 {
		t.Fatalf("expected one active session, got %d", n)
	}

	setMaintenance(t, env, false)
	if n := activeSessions(t, env, tok.ID); n != 0 {
		t.Fatalf("expected disable to end sessions, got %d active", n)
	}
	resp, _ := get(t, visitor, env.baseURL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open site, got %d", resp.StatusCode)
	}
}

func TestPendingTokenOverlayAndAdminBypass(t *testing.T) {
	env, closeFn := newGateTestServer(t)
	defer closeFn()

	tok := createToken(t, env, "Sky", 1)
	setMaintenance(t, env, true)

	visitor := newBrowser(t)
	resp, body := get(t, visitor, env.baseURL+"/?special_access="+url.QueryEscape(tok.Token))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "validate_token") {
		t.Fatalf("expected pending overlay for active token, got %d", resp.StatusCode)
	}
	resp, _ = get(t, visitor, env.baseURL+"/?special_access_token=not-a-token")
	expectRedirect(t, resp, "/maintenance")

	req, err := http.NewRequest(http.MethodGet, env.baseURL+"/pricing", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.adminToken)
	adminResp, err := newBrowser(t).Do(req)
	if err != nil {
		t.Fatalf("admin request: %v", err)
	}
	_ = adminResp.Body.Close()
	if adminResp.StatusCode != http.StatusOK {
		t.Fatalf("expected admin bypass, got %d", adminResp.StatusCode)
	}
}
