package repository

import (
	"context"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return translateError(r.db.WithContext(ctx).Create(&log).Error)
}

func (r *auditLogGormRepository) ListTrail(ctx context.Context, tq repo.AuditTrailQuery) ([]model.AuditLog, error) {
	q := r.db.WithContext(ctx).
		Model(&model.AuditLog{}).
		Where("resource_type = ? AND resource_id = ?", tq.ResourceType, tq.ResourceID)

	if tq.ActorUserID != nil {
		q = q.Where("actor_user_id = ?", *tq.ActorUserID)
	}
	if tq.Since != nil {
		q = q.Where("created_at >= ?", *tq.Since)
	}

	limit := tq.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := tq.Offset
	if offset < 0 {
		offset = 0
	}

	var logs []model.AuditLog
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, translateError(err)
	}
	return logs, nil
}
