package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/di"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

const adminPrefix = "/api/v1/admin/special-access"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type gateTestEnv struct {
	baseURL    string
	adminToken string
}

func newGateTestServer(t *testing.T) (*gateTestEnv, func()) {
	t.Helper()
	cfg := &config.Config{
		Env:                  "test",
		DBDriver:             "sqlite",
		DBURL:                filepath.Join(t.TempDir(), "gate.db"),
		JWTIssuer:            "special-access-gate",
		JWTAudience:          "special-access-admin",
		JWTAccessSecret:      "integration-secret-0123456789abcdef",
		AdminTokenTTL:        time.Hour,
		PasskeyPepper:        "integration-pepper-value",
		SessionCookieName:    "gate_sid",
		SessionCookieSecure:  false,
		SessionTTL:           time.Hour,
		GateStoreFailureMode: config.FailureModeClosed,
		MaintenancePath:      "/maintenance",
		PasskeyMaxFailures:   5,
		PasskeyFailureWindow: time.Minute,
		PasskeyLockout:       time.Minute,
		NegativeLookupTTL:    time.Second,
		EventsSink:           config.EventsSinkNone,
	}
	rt := &observability.Runtime{
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		HTTPMetrics: observability.NewHTTPMetrics(),
	}
	a, cleanup, err := di.InitializeApp(context.Background(), cfg, rt)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)

	adminToken, err := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret).
		SignAdminToken("ops@example.com", []string{security.RoleAdmin}, nil, time.Hour)
	if err != nil {
		t.Fatalf("sign admin token: %v", err)
	}
	return &gateTestEnv{baseURL: srv.URL, adminToken: adminToken}, func() {
		srv.Close()
		cleanup()
	}
}

// newBrowser returns a cookie-keeping client that reports redirects instead of following them.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *gateTestEnv) adminJSON(t *testing.T, method, path string, body any) (*http.Response, apiEnvelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.baseURL+adminPrefix+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.adminToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env apiEnvelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope (status=%d): %v", resp.StatusCode, err)
		}
	}
	return resp, env
}

func get(t *testing.T, client *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func postForm(t *testing.T, client *http.Client, rawURL string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := client.PostForm(rawURL, form)
	if err != nil {
		t.Fatalf("POST %s: %v", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// verifyPasskey loads the passkey form for token and submits passkey with the rendered CSRF value.
func verifyPasskey(t *testing.T, client *http.Client, baseURL, token, passkey string) (*http.Response, string) {
	t.Helper()
	resp, body := get(t, client, baseURL+"/special-access/verify?token="+url.QueryEscape(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify form: status=%d body=%s", resp.StatusCode, body)
	}
	m := csrfField.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("verify form has no csrf field: %s", body)
	}
	return postForm(t, client, baseURL+"/special-access/verify", url.Values{
		"token":      {token},
		"passkey":    {passkey},
		"csrf_token": {m[1]},
	})
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); !strings.HasPrefix(got, location) {
		t.Fatalf("expected redirect to %s, got %q", location, got)
	}
}
