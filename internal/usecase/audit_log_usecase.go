package usecase

import (
	"context"
	"net/http"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

type AuditLogUsecase struct {
	auditRepo repo.AuditLogRepository
}

func NewAuditLogUsecase(auditRepo repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{auditRepo: auditRepo}
}

type ListPurchaseAuditInput struct {
	PurchaseID int64
	Limit      int
	Offset     int
}

// 購入1件のステータス変更履歴（ADMINのみ）
func (u *AuditLogUsecase) ListForPurchase(ctx context.Context, actor Actor, in ListPurchaseAuditInput) (out []model.AuditLog, err error) {
	ctx, span := startSpan(ctx, "audit.list", actor, attribute.Int64("purchase.id", in.PurchaseID))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleAdmin); err != nil {
		return nil, err
	}
	if in.PurchaseID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid purchase_id")
	}
	if in.Limit < 0 || in.Limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.Offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}

	logs, err := u.auditRepo.ListTrail(ctx, repo.AuditTrailQuery{
		ResourceType: model.AuditResourcePurchase,
		ResourceID:   in.PurchaseID,
		Limit:        in.Limit,
		Offset:       in.Offset,
	})
	if err != nil {
		return nil, dbError(err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
