package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// 確認→集荷→配達/キャンセル
type FulfillmentUsecase struct {
	tx    repo.TransactionManager
	clock Clock
}

func NewFulfillmentUsecase(tx repo.TransactionManager, clock Clock) *FulfillmentUsecase {
	return &FulfillmentUsecase{tx: tx, clock: clock}
}

type ShipmentOutput struct {
	PurchaseID int64                `json:"purchase_id"`
	ShippingID int64                `json:"shipping_id"`
	Status     model.PurchaseStatus `json:"status"`
}

type ResolveShipmentOutput struct {
	ShipmentOutput
	//falseなら何も変えていない
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// WAITING_FOR_CONFIRMATION → PICKING。配送レコードを作る
func (u *FulfillmentUsecase) ConfirmPurchase(ctx context.Context, actor Actor, purchaseID int64) (out ShipmentOutput, err error) {
	ctx, span := startSpan(ctx, "fulfillment.confirm", actor, attribute.Int64("purchase.id", purchaseID))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleAdmin); err != nil {
		return ShipmentOutput{}, err
	}
	if purchaseID <= 0 {
		return ShipmentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid purchase_id")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Purchases().FindByIDForUpdate(ctx, purchaseID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "purchase not found")
		}
		if err != nil {
			return dbError(err)
		}

		next, err := model.NextStatus(p.Status, model.EventConfirm)
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, "purchase is not waiting for confirmation")
		}

		now := u.clock.Now()
		if err := r.Purchases().TransitionStatus(ctx, p.ID, p.Status, next, now); err != nil {
			return dbError(err)
		}
		shippingID, err := r.Shippings().Create(ctx, model.Shipping{PurchaseID: p.ID, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return dbError(err)
		}
		if err := writeStatusAudit(ctx, r, actor, p.ID, p.Status, next, now); err != nil {
			return err
		}

		out = ShipmentOutput{PurchaseID: p.ID, ShippingID: shippingID, Status: next}
		return nil
	})
	if err != nil {
		return ShipmentOutput{}, err
	}
	return out, nil
}

// PICKING → SHIPPING
func (u *FulfillmentUsecase) PickUp(ctx context.Context, actor Actor, shippingID int64) (out ShipmentOutput, err error) {
	ctx, span := startSpan(ctx, "fulfillment.pick_up", actor, attribute.Int64("shipping.id", shippingID))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleCourier); err != nil {
		return ShipmentOutput{}, err
	}
	if shippingID <= 0 {
		return ShipmentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_id")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		s, p, err := findShipment(ctx, r, shippingID)
		if err != nil {
			return err
		}

		next, err := model.NextStatus(p.Status, model.EventPickUp)
		if err != nil {
			return NewHTTPError(http.StatusUnprocessableEntity, "purchase is not picking")
		}

		now := u.clock.Now()
		if err := r.Purchases().TransitionStatus(ctx, p.ID, p.Status, next, now); err != nil {
			return dbError(err)
		}
		if err := r.Shippings().Touch(ctx, s.ID, now); err != nil {
			return dbError(err)
		}
		if err := writeStatusAudit(ctx, r, actor, p.ID, p.Status, next, now); err != nil {
			return err
		}

		out = ShipmentOutput{PurchaseID: p.ID, ShippingID: s.ID, Status: next}
		return nil
	})
	if err != nil {
		return ShipmentOutput{}, err
	}
	return out, nil
}

// SHIPPING → DELIVERED / CANCELED。SHIPPING以外（まだPICKINGなど）は何もしないで結果だけ返す
func (u *FulfillmentUsecase) ResolveShipment(ctx context.Context, actor Actor, shippingID int64, requested string) (out ResolveShipmentOutput, err error) {
	ctx, span := startSpan(ctx, "fulfillment.resolve", actor,
		attribute.Int64("shipping.id", shippingID),
		attribute.String("purchase.requested_status", requested),
	)
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleCourier); err != nil {
		return ResolveShipmentOutput{}, err
	}
	if shippingID <= 0 {
		return ResolveShipmentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_id")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		s, p, err := findShipment(ctx, r, shippingID)
		if err != nil {
			return err
		}

		//終端は再適用しない
		if p.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("purchase already %s", p.Status))
		}

		target, _ := model.ParsePurchaseStatus(requested)
		ev, ok := model.ResolveEvent(target)
		if !ok {
			return NewHTTPError(http.StatusBadRequest, "invalid status")
		}

		sp, err := r.StoreProducts().FindByID(ctx, p.StoreProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "store product not found")
		}
		if err != nil {
			return dbError(err)
		}

		base := ShipmentOutput{PurchaseID: p.ID, ShippingID: s.ID, Status: p.Status}
		if p.Status != model.PurchaseStatusShipping {
			out = ResolveShipmentOutput{
				ShipmentOutput: base,
				Applied:        false,
				Message:        fmt.Sprintf("purchase is %s, not shipping yet", p.Status),
			}
			return nil
		}

		next, err := model.NextStatus(p.Status, ev)
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, "invalid status")
		}

		ledger := NewInventoryLedger(r.Inventory())
		switch ev {
		case model.EventDeliver:
			err = ledger.RecordSale(ctx, sp.ID, p.ID, p.Quantity)
		case model.EventCancel:
			err = ledger.Release(ctx, sp.ID, p.ID, p.Quantity)
		}
		if errors.Is(err, ErrMovementApplied) {
			return NewHTTPError(http.StatusBadRequest, "shipment already resolved")
		}
		if err != nil {
			return dbError(err)
		}

		now := u.clock.Now()
		if err := r.Purchases().TransitionStatus(ctx, p.ID, p.Status, next, now); err != nil {
			return dbError(err)
		}
		if err := r.Shippings().Touch(ctx, s.ID, now); err != nil {
			return dbError(err)
		}
		if err := writeStatusAudit(ctx, r, actor, p.ID, p.Status, next, now); err != nil {
			return err
		}

		base.Status = next
		out = ResolveShipmentOutput{
			ShipmentOutput: base,
			Applied:        true,
			Message:        fmt.Sprintf("purchase %s", next),
		}
		return nil
	})
	if err != nil {
		return ResolveShipmentOutput{}, err
	}
	return out, nil
}

// 配送と紐づく購入（行ロック付き）
func findShipment(ctx context.Context, r repo.TxRepos, shippingID int64) (model.Shipping, model.Purchase, error) {
	s, err := r.Shippings().FindByID(ctx, shippingID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Shipping{}, model.Purchase{}, NewHTTPError(http.StatusNotFound, "shipping not found")
	}
	if err != nil {
		return model.Shipping{}, model.Purchase{}, dbError(err)
	}

	p, err := r.Purchases().FindByIDForUpdate(ctx, s.PurchaseID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Shipping{}, model.Purchase{}, NewHTTPError(http.StatusNotFound, "purchase not found")
	}
	if err != nil {
		return model.Shipping{}, model.Purchase{}, dbError(err)
	}
	return s, p, nil
}

// 「誰が」「どの購入を」「どう変えたか」を残す
func writeStatusAudit(ctx context.Context, r repo.TxRepos, actor Actor, purchaseID int64, from, to model.PurchaseStatus, now time.Time) error {
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actor.UserID,
		ActorRole:    actor.Role,
		Action:       model.AuditActionUpdatePurchaseStatus,
		ResourceType: model.AuditResourcePurchase,
		ResourceID:   purchaseID,
		BeforeJSON:   fmt.Sprintf(`{"status":%q}`, from),
		AfterJSON:    fmt.Sprintf(`{"status":%q}`, to),
		CreatedAt:    now,
	}); err != nil {
		return dbError(err)
	}
	return nil
}
