package websession

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

type ManagerConfig struct {
	CookieName string
	Secure     bool
	TTL        time.Duration
}

type Manager struct {
	store  Store
	cfg    ManagerConfig
	logger *slog.Logger
}

func NewManager(store Store, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "gate_sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, cfg: cfg, logger: logger}
}

func (m *Manager) CookieName() string { return m.cfg.CookieName }

// Middleware attaches the caller's web session to the request context. A missing or stale
// cookie yields a fresh session that is only stored, and only gets a cookie, once a handler
// flags it; anonymous page views leave no server-side state.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, isNew := m.load(r)
		if sess == nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if !isNew {
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
			m.persist(r, sess)
			return
		}
		cw := &cookieWriter{ResponseWriter: w, sess: sess, cookie: m.cookie(sess.ID)}
		next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), sess)))
		if sess.Dirty() {
			cw.issue()
			if cw.issued {
				m.persist(r, sess)
			}
		}
	})
}

func (m *Manager) persist(r *http.Request, sess *Session) {
	ctx := r.Context()
	if sess.Dirty() {
		if err := m.store.Save(ctx, sess, m.cfg.TTL); err != nil {
			m.logger.ErrorContext(ctx, "web session save failed", "error", err)
		}
		return
	}
	if err := m.store.Touch(ctx, sess.ID, m.cfg.TTL); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.WarnContext(ctx, "web session touch failed", "error", err)
	}
}

// cookieWriter sets the session cookie on the first header write if the handler kept the
// session by then.
type cookieWriter struct {
	http.ResponseWriter
	sess   *Session
	cookie *http.Cookie
	issued bool
	wrote  bool
}

func (w *cookieWriter) issue() {
	if w.issued || w.wrote {
		return
	}
	w.issued = true
	http.SetCookie(w.ResponseWriter, w.cookie)
}

func (w *cookieWriter) WriteHeader(status int) {
	if !w.wrote {
		if w.sess.Dirty() {
			w.issue()
		}
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (m *Manager) load(r *http.Request) (*Session, bool) {
	ctx := r.Context()
	if id := security.GetCookie(r, m.cfg.CookieName); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			sess, err := m.store.Load(ctx, id)
			if err == nil {
				return sess, false
			}
			if !errors.Is(err, ErrNotFound) {
				m.logger.ErrorContext(ctx, "web session load failed", "error", err)
			}
		}
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		m.logger.ErrorContext(ctx, "csrf token generation failed", "error", err)
		return nil, false
	}
	return New(csrf), true
}

func (m *Manager) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.cfg.TTL.Seconds()),
	}
}
