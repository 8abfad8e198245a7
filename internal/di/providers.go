package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/special-access-gate/internal/app"
	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/database"
	"github.com/sandeepkv93/special-access-gate/internal/events"
	"github.com/sandeepkv93/special-access-gate/internal/health"
	"github.com/sandeepkv93/special-access-gate/internal/http/handler"
	"github.com/sandeepkv93/special-access-gate/internal/http/middleware"
	"github.com/sandeepkv93/special-access-gate/internal/http/router"
	"github.com/sandeepkv93/special-access-gate/internal/http/view"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

func provideLogger(rt *observability.Runtime) *slog.Logger { return rt.Logger }

func provideDB(cfg *config.Config) (*gorm.DB, func(), error) {
	maxOpen := 25
	if cfg.DBDriver == database.DriverSQLite {
		maxOpen = 1
	}
	db, err := database.Open(database.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBURL,
		LogSQL:          cfg.DBLogSQL,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

// provideRedis returns a nil client when REDIS_ADDR is unset; every consumer falls back to its
// in-process implementation in that case.
func provideRedis(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func providePublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func(), error) {
	pub, err := events.NewPublisher(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("events publisher: %w", err)
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("close events publisher", "sink", pub.Name(), "error", err)
		}
	}, nil
}

func providePasskeyHasher(cfg *config.Config) (*security.PasskeyHasher, error) {
	return security.NewPasskeyHasher(cfg.PasskeyPepper)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
}

func provideNegativeLookupCache(client redis.UniversalClient) service.NegativeLookupCache {
	if client == nil {
		return service.NewInMemoryNegativeLookupCache()
	}
	return service.NewRedisNegativeLookupCache(client, "")
}

func provideAttemptGuard(cfg *config.Config, client redis.UniversalClient) service.PasskeyAttemptGuard {
	policy := service.PasskeyAttemptPolicy{
		MaxFailures:      cfg.PasskeyMaxFailures,
		MaxTokenFailures: cfg.PasskeyTokenMaxFailures,
		Window:           cfg.PasskeyFailureWindow,
		Lockout:          cfg.PasskeyLockout,
	}
	if client == nil {
		return service.NewInMemoryPasskeyAttemptGuard(policy)
	}
	return service.NewRedisPasskeyAttemptGuard(client, "", policy)
}

func provideWebSessionStore(client redis.UniversalClient) websession.Store {
	if client == nil {
		return websession.NewInMemoryStore()
	}
	return websession.NewRedisStore(client, "")
}

func provideWebSessionManager(cfg *config.Config, store websession.Store, logger *slog.Logger) *websession.Manager {
	return websession.NewManager(store, websession.ManagerConfig{
		CookieName: cfg.SessionCookieName,
		Secure:     cfg.SessionCookieSecure,
		TTL:        cfg.SessionTTL,
	}, logger)
}

func provideTokenRegistryConfig(cfg *config.Config) service.TokenRegistryConfig {
	return service.TokenRegistryConfig{NegativeLookupTTL: cfg.NegativeLookupTTL}
}

func provideSpecialAccessHandler(cfg *config.Config, registry *service.TokenRegistry, binder *service.SessionBinder, guard service.PasskeyAttemptGuard, views *view.Renderer, logger *slog.Logger) *handler.SpecialAccessHandler {
	return handler.NewSpecialAccessHandler(registry, binder, guard, views, cfg.Debug, logger)
}

func provideAdminSessionHandler(cfg *config.Config, logger *slog.Logger) *handler.AdminSessionHandler {
	return handler.NewAdminSessionHandler(cfg.SessionCookieSecure, logger)
}

func provideGate(cfg *config.Config, maintenance *service.MaintenanceService, registry *service.TokenRegistry, binder *service.SessionBinder, accessLog *service.AccessLogger, logger *slog.Logger) *middleware.Gate {
	return middleware.NewGate(maintenance, registry, binder, accessLog, middleware.GateConfig{
		MaintenancePath: cfg.MaintenancePath,
		FailureMode:     cfg.GateStoreFailureMode,
	}, logger)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.CheckRunner {
	return health.NewCheckRunner(2*time.Second, 5*time.Second, health.DBChecker(db), health.RedisChecker(client))
}

func provideRouter(
	cfg *config.Config,
	rt *observability.Runtime,
	specialAccess *handler.SpecialAccessHandler,
	site *handler.SiteHandler,
	admin *handler.AdminHandler,
	adminSession *handler.AdminSessionHandler,
	gate *middleware.Gate,
	sessions *websession.Manager,
	jwtMgr *security.JWTManager,
	rbac *service.RBACService,
	readiness *health.CheckRunner,
	logger *slog.Logger,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		SpecialAccessHandler: specialAccess,
		SiteHandler:          site,
		AdminHandler:         admin,
		AdminSessionHandler:  adminSession,
		Gate:                 gate,
		WebSessions:          sessions,
		JWTManager:           jwtMgr,
		RBACService:          rbac,
		CORSOrigins:          cfg.CORSOrigins,
		TrustedProxies:       cfg.TrustedProxies,
		VerifyRateLimitRPM:   cfg.VerifyRateLimitRPM,
		MaintenancePath:      cfg.MaintenancePath,
		Readiness:            readiness,
		Metrics:              rt.HTTPMetrics,
		Logger:               logger,
		EnableOTelHTTP:       cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func provideApp(cfg *config.Config, logger *slog.Logger, server *http.Server, rt *observability.Runtime, readiness *health.CheckRunner, binder *service.SessionBinder, _ Migrated) *app.App {
	return app.New(cfg, logger, server, rt, readiness, binder)
}

// provideMigrated applies pending migrations before any repository touches the schema.
func provideMigrated(ctx context.Context, db *gorm.DB, logger *slog.Logger) (Migrated, error) {
	applied, err := database.Migrate(ctx, db)
	if err != nil {
		return Migrated{}, err
	}
	if len(applied) > 0 {
		logger.Info("database migrations applied", "versions", applied)
	}
	return Migrated{Versions: applied}, nil
}

// Migrated marks a database whose schema is current.
type Migrated struct {
	Versions []string
}

// Operator bundles the services the CLI drives directly, without the HTTP stack.
type Operator struct {
	Registry    *service.TokenRegistry
	Sessions    *service.SessionBinder
	Maintenance *service.MaintenanceService
	Migrated    Migrated
}
