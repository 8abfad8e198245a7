//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/sandeepkv93/special-access-gate/internal/app"
	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/http/handler"
	"github.com/sandeepkv93/special-access-gate/internal/http/view"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
	"github.com/sandeepkv93/special-access-gate/internal/service"
)

var storeSet = wire.NewSet(
	provideDB,
	provideRedis,
	provideMigrated,
	repository.NewSettingRepository,
	repository.NewTokenRepository,
	repository.NewSessionRepository,
	repository.NewAccessLogRepository,
)

var serviceSet = wire.NewSet(
	providePublisher,
	providePasskeyHasher,
	provideNegativeLookupCache,
	provideTokenRegistryConfig,
	service.NewAccessLogger,
	service.NewMaintenanceService,
	service.NewTokenRegistry,
	service.NewSessionBinder,
	wire.Bind(new(service.AccessRecorder), new(*service.AccessLogger)),
	wire.Bind(new(service.MaintenanceReader), new(*service.MaintenanceService)),
)

var httpSet = wire.NewSet(
	provideJWTManager,
	provideAttemptGuard,
	provideWebSessionStore,
	provideWebSessionManager,
	provideSpecialAccessHandler,
	provideGate,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
	view.NewRenderer,
	handler.NewSiteHandler,
	handler.NewAdminHandler,
	provideAdminSessionHandler,
	service.NewRBACService,
)

func InitializeApp(ctx context.Context, cfg *config.Config, rt *observability.Runtime) (*app.App, func(), error) {
	wire.Build(provideLogger, storeSet, serviceSet, httpSet, provideApp)
	return nil, nil, nil
}

func InitializeOperator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Operator, func(), error) {
	wire.Build(storeSet, serviceSet, wire.Struct(new(Operator), "*"))
	return nil, nil, nil
}
