package websession

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryStoreRoundTripAndExpiry(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	s := New("csrf")
	s.MarkVerified(7, "Alice", nil)
	if err := store.Save(ctx, s, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.Dirty() {
		t.Fatal("saved session must not be dirty")
	}
	got, err := store.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.IsVerified() || got.SpecialAccess.TokenID != 7 {
		t.Fatalf("unexpected session: %+v", got.SpecialAccess)
	}
	got.SpecialAccess.Name = "mutated"
	again, _ := store.Load(ctx, s.ID)
	if again.SpecialAccess.Name != "Alice" {
		t.Fatal("loaded sessions must not alias stored state")
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "ws_test")
	ctx := context.Background()

	s := New("csrf")
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	s.MarkVerified(3, "Bob", &exp)
	if err := store.Save(ctx, s, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CSRFToken != "csrf" || !got.IsVerified() || !got.SpecialAccess.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected session: %+v", got)
	}

	server.FastForward(50 * time.Second)
	if err := store.Touch(ctx, s.ID, time.Minute); err != nil {
		t.Fatalf("touch: %v", err)
	}
	server.FastForward(50 * time.Second)
	if _, err := store.Load(ctx, s.ID); err != nil {
		t.Fatalf("touched session should still exist: %v", err)
	}
	server.FastForward(2 * time.Minute)
	if _, err := store.Load(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestManagerMiddlewareIssuesCookieAndPersistsChanges(t *testing.T) {
	store := NewInMemoryStore()
	mgr := NewManager(store, ManagerConfig{CookieName: "gate_sid", TTL: time.Hour}, nil)
	h := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		if r.URL.Path == "/verify" {
			sess.MarkVerified(1, "Carol", nil)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/verify", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "gate_sid" || !cookies[0].HttpOnly {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}

	stored, err := store.Load(context.Background(), cookies[0].Value)
	if err != nil {
		t.Fatalf("load persisted session: %v", err)
	}
	if !stored.IsVerified() {
		t.Fatal("expected verified flag to be persisted")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("existing session must not be reissued")
	}
}

func TestManagerIgnoresMalformedCookie(t *testing.T) {
	mgr := NewManager(NewInMemoryStore(), ManagerConfig{}, nil)
	var seen string
	h := mgr.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		seen = sess.ID
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gate_sid", Value: "../../etc/passwd"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "../../etc/passwd" || seen == "" {
		t.Fatalf("expected a fresh session id, got %q", seen)
	}
}

func TestManagerDoesNotStoreAnonymousSessions(t *testing.T) {
	store := NewInMemoryStore()
	mgr := NewManager(store, ManagerConfig{TTL: time.Hour}, nil)
	h := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("page"))
	}))

	for i := 0; i < 10000; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(rr.Result().Cookies()) != 0 {
			t.Fatal("anonymous page views must not receive a session cookie")
		}
	}
	if got := store.Len(); got != 0 {
		t.Fatalf("expected no stored sessions after cookieless views, got %d", got)
	}
}

func TestManagerStoresKeptSession(t *testing.T) {
	store := NewInMemoryStore()
	mgr := NewManager(store, ManagerConfig{TTL: time.Hour}, nil)
	var csrf string
	h := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		sess.Keep()
		csrf = sess.CSRFToken
		_, _ = w.Write([]byte("form"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/special-access/verify", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected a cookie for the kept session, got %+v", cookies)
	}
	stored, err := store.Load(context.Background(), cookies[0].Value)
	if err != nil {
		t.Fatalf("load kept session: %v", err)
	}
	if stored.CSRFToken != csrf {
		t.Fatal("stored session must carry the CSRF token that was rendered")
	}
}

func TestManagerSkipsSessionKeptAfterHeadersWritten(t *testing.T) {
	store := NewInMemoryStore()
	mgr := NewManager(store, ManagerConfig{TTL: time.Hour}, nil)
	h := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		sess, _ := FromContext(r.Context())
		sess.Keep()
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rr.Result().Cookies()) != 0 || store.Len() != 0 {
		t.Fatal("a session whose cookie could not be sent must not be stored")
	}
}

func TestInMemoryStoreSweepsAndCaps(t *testing.T) {
	store := NewInMemoryStore()
	store.maxEntries = 3
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	short := New("a")
	_ = store.Save(ctx, short, time.Minute)
	for i := 0; i < 2; i++ {
		_ = store.Save(ctx, New("b"), time.Hour)
	}
	extra := New("c")
	if err := store.Save(ctx, extra, time.Hour); err != nil {
		t.Fatalf("save at capacity: %v", err)
	}
	if got := store.Len(); got != 3 {
		t.Fatalf("expected capacity to hold, got %d", got)
	}
	if _, err := store.Load(ctx, short.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected the entry closest to expiry to be evicted")
	}

	now = now.Add(2 * time.Hour)
	_ = store.Save(ctx, New("d"), time.Hour)
	if got := store.Len(); got != 1 {
		t.Fatalf("expected expired sessions swept on write, got %d", got)
	}
}
