package repository

import (
	"context"

	"github.com/sandeepkv93/special-access-gate/internal/domain"
	"github.com/sandeepkv93/special-access-gate/internal/observability"

	"gorm.io/gorm"
)

type AccessLogQuery struct {
	PageRequest
	TokenID *uint
	Action  string
}

type AccessLogRepository interface {
	Append(ctx context.Context, e *domain.AccessLogEntry) error
	List(ctx context.Context, q AccessLogQuery) (PageResult[domain.AccessLogEntry], error)
	CountByAction(ctx context.Context, tokenID uint, action string) (int64, error)
}

type GormAccessLogRepository struct{ db *gorm.DB }

func NewAccessLogRepository(db *gorm.DB) AccessLogRepository {
	return &GormAccessLogRepository{db: db}
}

func (r *GormAccessLogRepository) Append(ctx context.Context, e *domain.AccessLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = nowUTC()
	}
	err := r.db.WithContext(ctx).Create(e).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "access_log", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "access_log", "append", "success")
	return nil
}

func (r *GormAccessLogRepository) List(ctx context.Context, q AccessLogQuery) (PageResult[domain.AccessLogEntry], error) {
	page := normalizePageRequest(q.PageRequest)
	result := PageResult[domain.AccessLogEntry]{Page: page.Page, PageSize: page.PageSize, Items: []domain.AccessLogEntry{}}

	scope := r.db.WithContext(ctx).Model(&domain.AccessLogEntry{})
	if q.TokenID != nil {
		scope = scope.Where("token_id = ?", *q.TokenID)
	}
	if q.Action != "" {
		scope = scope.Where("action = ?", q.Action)
	}
	scope = scope.Session(&gorm.Session{})
	if err := scope.Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "access_log", "list", "error")
		return result, err
	}
	if err := scope.Order("created_at DESC, id DESC").
		Offset(page.offset()).
		Limit(page.PageSize).
		Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "access_log", "list", "error")
		return result, err
	}
	result.TotalPages = calcTotalPages(result.Total, page.PageSize)
	observability.RecordRepositoryOperation(ctx, "access_log", "list", "success")
	return result, nil
}

func (r *GormAccessLogRepository) CountByAction(ctx context.Context, tokenID uint, action string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AccessLogEntry{}).
		Where("token_id = ? AND action = ?", tokenID, action).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "access_log", "count_by_action", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "access_log", "count_by_action", "success")
	return count, nil
}
