package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
)

// SchemaMigration records one applied schema version.
type SchemaMigration struct {
	Version   string    `gorm:"primaryKey;size:32"`
	Name      string    `gorm:"size:128;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

type Migration struct {
	Version string
	Name    string
	Up      func(db *gorm.DB) error
}

var migrations = []Migration{
	{Version: "0001", Name: "create_settings", Up: func(db *gorm.DB) error {
		return db.AutoMigrate(&domain.Setting{})
	}},
	{Version: "0002", Name: "create_special_access_tokens", Up: func(db *gorm.DB) error {
		return db.AutoMigrate(&domain.AccessToken{})
	}},
	{Version: "0003", Name: "create_special_access_sessions", Up: func(db *gorm.DB) error {
		return db.AutoMigrate(&domain.SpecialAccessSession{})
	}},
	{Version: "0004", Name: "create_special_access_logs", Up: func(db *gorm.DB) error {
		return db.AutoMigrate(&domain.AccessLogEntry{})
	}},
	{Version: "0005", Name: "seed_maintenance_settings", Up: func(db *gorm.DB) error {
		seed := []domain.Setting{
			{Key: domain.SettingMaintenanceEnabled, Value: "0"},
			{Key: domain.SettingMaintenanceEndTime, Value: ""},
		}
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
	}},
}

// Migrations returns the ordered migration list.
func Migrations() []Migration {
	out := append([]Migration(nil), migrations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Migrate applies every pending migration in version order and returns the versions applied.
func Migrate(ctx context.Context, db *gorm.DB) ([]string, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var done []SchemaMigration
	if err := db.Find(&done).Error; err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	appliedSet := make(map[string]struct{}, len(done))
	for _, m := range done {
		appliedSet[m.Version] = struct{}{}
	}

	var applied []string
	for _, m := range Migrations() {
		if _, ok := appliedSet[m.Version]; ok {
			continue
		}
		if err := m.Up(db); err != nil {
			return applied, fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
		rec := SchemaMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()}
		if err := db.Create(&rec).Error; err != nil {
			return applied, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		slog.Info("schema migration applied", "version", m.Version, "name", m.Name)
		applied = append(applied, m.Version)
	}
	return applied, nil
}
