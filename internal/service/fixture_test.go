package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/database"
	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/events"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
	"github.com/sandeepkv93/special-access-gate/internal/security"

	"gorm.io/gorm"
)

type countingTokenRepo struct {
	repository.TokenRepository
	findByToken atomic.Int64
}

func (r *countingTokenRepo) FindByToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	r.findByToken.Add(1)
	return r.TokenRepository.FindByToken(ctx, token)
}

type serviceFixture struct {
	db          *gorm.DB
	tokens      *countingTokenRepo
	sessions    repository.SessionRepository
	accessLogs  repository.AccessLogRepository
	publisher   *events.InMemoryPublisher
	accessLog   *AccessLogger
	maintenance *MaintenanceService
	registry    *TokenRegistry
	binder      *SessionBinder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver:       database.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if _, err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher, err := security.NewPasskeyHasher("fixture-pepper-value")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f := &serviceFixture{
		db:         db,
		tokens:     &countingTokenRepo{TokenRepository: repository.NewTokenRepository(db)},
		sessions:   repository.NewSessionRepository(db),
		accessLogs: repository.NewAccessLogRepository(db),
		publisher:  events.NewInMemoryPublisher(),
	}
	f.accessLog = NewAccessLogger(f.accessLogs, f.publisher, logger)
	f.maintenance = NewMaintenanceService(repository.NewSettingRepository(db), f.sessions, logger)
	f.registry = NewTokenRegistry(f.tokens, hasher, f.accessLog, NewInMemoryNegativeLookupCache(), TokenRegistryConfig{NegativeLookupTTL: time.Minute}, logger)
	f.binder = NewSessionBinder(f.tokens, f.sessions, f.maintenance, hasher, f.accessLog, logger)
	return f
}

func (f *serviceFixture) enableMaintenance(t *testing.T, end *time.Time) {
	t.Helper()
	if err := f.maintenance.Enable(context.Background(), end); err != nil {
		t.Fatalf("enable maintenance: %v", err)
	}
}

func (f *serviceFixture) createToken(t *testing.T, maxSessions int) *CreatedToken {
	t.Helper()
	created, err := f.registry.CreateToken(context.Background(), CreateTokenInput{Name: "Tester", Email: "t@example.com", CreatedBy: "ops", MaxSessions: maxSessions})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return created
}

func (f *serviceFixture) countActions(t *testing.T, tokenID uint, action string) int64 {
	t.Helper()
	n, err := f.accessLogs.CountByAction(context.Background(), tokenID, action)
	if err != nil {
		t.Fatalf("count %s: %v", action, err)
	}
	return n
}
