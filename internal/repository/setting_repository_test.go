package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
)

func TestSettingRepositoryGetSet(t *testing.T) {
	repo := NewSettingRepository(newTestDB(t))
	ctx := context.Background()

	v, err := repo.Get(ctx, domain.SettingMaintenanceEnabled)
	if err != nil {
		t.Fatalf("get seeded: %v", err)
	}
	if v != "0" {
		t.Fatalf("expected seeded value 0, got %q", v)
	}

	if err := repo.SetMany(ctx, map[string]string{
		domain.SettingMaintenanceEnabled: "1",
		domain.SettingMaintenanceEndTime: "2030-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("set many: %v", err)
	}
	if v, _ := repo.Get(ctx, domain.SettingMaintenanceEnabled); v != "1" {
		t.Fatalf("expected 1, got %q", v)
	}
	if err := repo.Set(ctx, "custom", "x"); err != nil {
		t.Fatalf("set new key: %v", err)
	}
	if v, _ := repo.Get(ctx, "custom"); v != "x" {
		t.Fatalf("expected x, got %q", v)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}
}
