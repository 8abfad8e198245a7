package router

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/special-access-gate/internal/health"
	"github.com/sandeepkv93/special-access-gate/internal/http/handler"
	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/response"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

type Dependencies struct {
	SpecialAccessHandler *handler.SpecialAccessHandler
	SiteHandler          *handler.SiteHandler
	AdminHandler         *handler.AdminHandler
	AdminSessionHandler  *handler.AdminSessionHandler
	Gate                 *middleware.Gate
	WebSessions          *websession.Manager
	JWTManager           *security.JWTManager
	RBACService          service.RBACAuthorizer
	CORSOrigins          []string
	TrustedProxies       []netip.Prefix
	VerifyRateLimitRPM   int
	MaintenancePath      string
	Readiness            *health.CheckRunner
	Metrics              *observability.HTTPMetrics
	Logger               *slog.Logger
	EnableOTelHTTP       bool
}

func NewRouter(dep Dependencies) http.Handler {
	if dep.MaintenancePath == "" {
		dep.MaintenancePath = "/maintenance"
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(dep.TrustedProxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.Metrics != nil {
		r.Use(dep.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", dep.Metrics.Handler())
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1/admin/special-access", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   dep.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeaderName, "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(middleware.AuthMiddleware(dep.JWTManager))
		r.Use(middleware.CSRFMiddleware)
		read := middleware.RequirePermission(dep.RBACService, security.PermissionRead)
		write := middleware.RequirePermission(dep.RBACService, security.PermissionWrite)

		r.Post("/session", dep.AdminSessionHandler.Open)
		r.Delete("/session", dep.AdminSessionHandler.Close)
		r.With(read).Get("/tokens", dep.AdminHandler.ListTokens)
		r.With(write).Post("/tokens", dep.AdminHandler.CreateToken)
		r.With(write).Post("/tokens/cleanup", dep.AdminHandler.CleanupTokens)
		r.With(write).Post("/tokens/{id}/revoke", dep.AdminHandler.RevokeToken)
		r.With(write).Post("/tokens/{id}/reactivate", dep.AdminHandler.ReactivateToken)
		r.With(read).Get("/tokens/{id}/sessions", dep.AdminHandler.ListSessions)
		r.With(write).Delete("/sessions/{id}", dep.AdminHandler.TerminateSession)
		r.With(read).Get("/access-log", dep.AdminHandler.AccessLog)
		r.With(read).Get("/maintenance", dep.AdminHandler.GetMaintenance)
		r.With(write).Put("/maintenance", dep.AdminHandler.PutMaintenance)
	})

	r.Group(func(r chi.Router) {
		r.Use(dep.WebSessions.Middleware)
		r.Use(middleware.OptionalAuth(dep.JWTManager))
		r.Use(dep.Gate.Middleware)

		verifyLimiter := middleware.RateLimitByIP(dep.VerifyRateLimitRPM)
		r.Get(dep.MaintenancePath, dep.SiteHandler.Maintenance)
		r.With(verifyLimiter).Get(middleware.ValidatePath, dep.SpecialAccessHandler.Validate)
		r.With(verifyLimiter).Get(middleware.VerifyPath, dep.SpecialAccessHandler.VerifyForm)
		r.With(verifyLimiter).Post(middleware.VerifyPath, dep.SpecialAccessHandler.Verify)
		r.Get("/", dep.SiteHandler.Home)
		r.Get("/*", dep.SiteHandler.Home)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
