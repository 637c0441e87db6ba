package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 1つのリソースに対する操作履歴の取り出し条件
type AuditTrailQuery struct {
	ResourceType model.AuditResourceType
	ResourceID   int64
	ActorUserID  *int64
	Since        *time.Time
	Limit        int
	Offset       int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 新しい順
	ListTrail(ctx context.Context, q AuditTrailQuery) ([]model.AuditLog, error)
}
