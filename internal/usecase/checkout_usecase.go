package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const maxIdempotencyKeyLen = 255

type CheckoutUsecase struct {
	tx    repo.TransactionManager
	idem  repo.IdempotencyStore // nilなら二重送信防止なし
	clock Clock
}

func NewCheckoutUsecase(tx repo.TransactionManager, idem repo.IdempotencyStore, clock Clock) *CheckoutUsecase {
	return &CheckoutUsecase{tx: tx, idem: idem, clock: clock}
}

type BuyProductsInput struct {
	PurchaseIDs    []int64
	IdempotencyKey string
}

type BuyProductsOutput struct {
	PurchaseIDs []int64              `json:"purchase_id"`
	Status      model.PurchaseStatus `json:"status"`
	Replayed    bool                 `json:"replayed"`
}

type checkoutLine struct {
	purchaseID     int64
	storeProductID int64
	quantity       int64
}

// カートの行をまとめて購入。全件成功か、何も変えないか
func (u *CheckoutUsecase) BuyProducts(ctx context.Context, actor Actor, in BuyProductsInput) (out BuyProductsOutput, err error) {
	ctx, span := startSpan(ctx, "checkout.buy", actor, attribute.Int("purchase.count", len(in.PurchaseIDs)))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleUser); err != nil {
		return BuyProductsOutput{}, err
	}
	ids, err := normalizeIDs(in.PurchaseIDs)
	if err != nil {
		return BuyProductsOutput{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return BuyProductsOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency key")
	}
	if key == "" || u.idem == nil {
		return u.buy(ctx, actor, ids)
	}

	//同じキーなら同じ結果。中身が違えば使い回しとみなす
	scoped := fmt.Sprintf("checkout:%d:%s", actor.UserID, key)
	fp := checkoutFingerprint(ids)
	rec, err := u.idem.Begin(ctx, scoped, fp)
	if err != nil {
		return BuyProductsOutput{}, idempotencyError(err)
	}
	switch rec.State {
	case repo.IdempotencyInFlight:
		if rec.Fingerprint != "" && rec.Fingerprint != fp {
			return BuyProductsOutput{}, errKeyReused()
		}
		return BuyProductsOutput{}, NewHTTPError(http.StatusConflict, "checkout already in progress")
	case repo.IdempotencyDone:
		if rec.Fingerprint != fp {
			return BuyProductsOutput{}, errKeyReused()
		}
		var prev BuyProductsOutput
		if err := json.Unmarshal(rec.Payload, &prev); err != nil {
			return BuyProductsOutput{}, idempotencyError(err)
		}
		prev.Replayed = true
		return prev, nil
	}

	out, err = u.buy(ctx, actor, ids)
	if err != nil {
		//失敗したらキーを解放してリトライできるようにする
		if abortErr := u.idem.Abort(ctx, scoped, rec.Lease); abortErr != nil {
			zerolog.Ctx(ctx).Warn().Err(abortErr).Str("idempotency_key", key).Msg("release idempotency key failed")
		}
		return BuyProductsOutput{}, err
	}

	payload, mErr := json.Marshal(out)
	if mErr == nil {
		mErr = u.idem.Complete(ctx, scoped, rec.Lease, payload)
	}
	if mErr != nil {
		//購入自体はcommit済みなので成功で返す
		zerolog.Ctx(ctx).Warn().Err(mErr).Str("idempotency_key", key).Msg("store checkout result failed")
	}
	return out, nil
}

func (u *CheckoutUsecase) buy(ctx context.Context, actor Actor, ids []int64) (BuyProductsOutput, error) {
	next, err := model.NextStatus(model.PurchaseStatusInCart, model.EventCheckout)
	if err != nil {
		return BuyProductsOutput{}, dbError(err)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//1. 全件チェック（まだ何も変えない）
		lines := make([]checkoutLine, 0, len(ids))
		for _, id := range ids {
			p, err := r.Purchases().FindByIDForUpdate(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "purchase not found")
			}
			if err != nil {
				return dbError(err)
			}
			if p.UserID != actor.UserID {
				return NewHTTPError(http.StatusBadRequest, "purchase not found")
			}
			if p.Status != model.PurchaseStatusInCart {
				return NewHTTPError(http.StatusUnprocessableEntity, "purchase is not in cart")
			}

			sp, err := r.StoreProducts().FindByID(ctx, p.StoreProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "store product not found")
			}
			if err != nil {
				return dbError(err)
			}
			if sp.StockQuantity < p.Quantity {
				return NewHTTPError(http.StatusUnprocessableEntity, "not enough stock")
			}
			lines = append(lines, checkoutLine{purchaseID: p.ID, storeProductID: sp.ID, quantity: p.Quantity})
		}

		//2. 在庫確保。商品ID順に取ってデッドロックを避ける
		sort.Slice(lines, func(i, j int) bool {
			if lines[i].storeProductID != lines[j].storeProductID {
				return lines[i].storeProductID < lines[j].storeProductID
			}
			return lines[i].purchaseID < lines[j].purchaseID
		})
		ledger := NewInventoryLedger(r.Inventory())
		for _, l := range lines {
			err := ledger.Reserve(ctx, l.storeProductID, l.purchaseID, l.quantity)
			if errors.Is(err, ErrInsufficientStock) {
				return NewHTTPError(http.StatusUnprocessableEntity, "not enough stock")
			}
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "store product not found")
			}
			if err != nil {
				return dbError(err)
			}
		}

		//3. まとめてステータス更新
		n, err := r.Purchases().BatchTransitionStatus(ctx, actor.UserID, ids, model.PurchaseStatusInCart, next, u.clock.Now())
		if err != nil {
			return dbError(err)
		}
		if n != int64(len(ids)) {
			return dbError(repo.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return BuyProductsOutput{}, err
	}

	return BuyProductsOutput{PurchaseIDs: ids, Status: next}, nil
}

// 正規化済み（昇順・重複なし）のIDを並べたもの
func checkoutFingerprint(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func errKeyReused() error {
	return NewHTTPError(http.StatusUnprocessableEntity, "idempotency key reused with different purchases")
}

func idempotencyError(err error) error {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Message: "idempotency store error",
		Err:     err,
	}
}
