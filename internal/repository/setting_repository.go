package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSettingNotFound = errors.New("setting not found")

type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
}

type GormSettingRepository struct{ db *gorm.DB }

func NewSettingRepository(db *gorm.DB) SettingRepository { return &GormSettingRepository{db: db} }

func (r *GormSettingRepository) Get(ctx context.Context, key string) (string, error) {
	var s domain.Setting
	err := r.db.WithContext(ctx).Where("name = ?", key).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "setting", "get", "not_found")
			return "", ErrSettingNotFound
		}
		observability.RecordRepositoryOperation(ctx, "setting", "get", "error")
		return "", err
	}
	observability.RecordRepositoryOperation(ctx, "setting", "get", "success")
	return s.Value, nil
}

func (r *GormSettingRepository) Set(ctx context.Context, key, value string) error {
	err := upsertSetting(r.db.WithContext(ctx), key, value)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "setting", "set", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "setting", "set", "success")
	return nil
}

// SetMany writes all values in one transaction so readers never observe a partial update.
func (r *GormSettingRepository) SetMany(ctx context.Context, values map[string]string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range values {
			if err := upsertSetting(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "setting", "set_many", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "setting", "set_many", "success")
	return nil
}

func upsertSetting(db *gorm.DB, key, value string) error {
	s := domain.Setting{Key: key, Value: value}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
}
