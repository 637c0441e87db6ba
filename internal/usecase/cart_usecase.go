package usecase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// 同時に同じ商品を入れたとき部分ユニーク制約に当たる。1回だけマージでやり直す
var errCartRace = errors.New("cart row inserted concurrently")

type CartUsecase struct {
	tx    repo.TransactionManager
	clock Clock
}

func NewCartUsecase(tx repo.TransactionManager, clock Clock) *CartUsecase {
	return &CartUsecase{tx: tx, clock: clock}
}

type AddToCartInput struct {
	StoreProductID int64
	BuyCount       int64
}

type CartLineOutput struct {
	StoreProductID int64 `json:"stores_products_id"`
	BuyCount       int64 `json:"buy_count"`
}

type UpdatePurchaseInput struct {
	PurchaseID int64
	BuyCount   int64
}

type UpdatePurchaseOutput struct {
	PurchaseID int64           `json:"purchase_id"`
	BuyCount   int64           `json:"buy_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type DeletePurchasesOutput struct {
	PurchaseIDs []int64 `json:"purchase_id"`
}

type ListPurchasesInput struct {
	Status string
	Page   int
	Limit  int
}

type PurchaseOutput struct {
	ID             int64                `json:"id"`
	UserID         int64                `json:"user_id"`
	StoreProductID int64                `json:"stores_products_id"`
	Quantity       int64                `json:"quantity"`
	TotalPrice     decimal.Decimal      `json:"total_price"`
	Status         model.PurchaseStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	StoreProduct   *model.StoreProduct  `json:"store_product,omitempty"`
	Shipping       *model.Shipping      `json:"shipping,omitempty"`
}

type Pagination struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	Limit    int   `json:"limit"`
	PageSize int64 `json:"page_size"`
}

type ListPurchasesOutput struct {
	Purchases  []PurchaseOutput `json:"purchases"`
	Pagination Pagination       `json:"pagination"`
}

// カートに追加。既にIN_CARTの行があれば数量をマージする（在庫は減らさない）
func (u *CartUsecase) AddToCart(ctx context.Context, actor Actor, in AddToCartInput) (out CartLineOutput, err error) {
	ctx, span := startSpan(ctx, "cart.add", actor, attribute.Int64("store_product.id", in.StoreProductID))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleUser); err != nil {
		return CartLineOutput{}, err
	}
	if in.StoreProductID <= 0 {
		return CartLineOutput{}, NewHTTPError(http.StatusBadRequest, "invalid stores_products_id")
	}
	if in.BuyCount <= 0 {
		return CartLineOutput{}, NewHTTPError(http.StatusBadRequest, "invalid buy_count")
	}

	run := func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			return u.addToCart(ctx, r, actor.UserID, in)
		})
	}

	err = run()
	if errors.Is(err, errCartRace) {
		//相手のTxはcommit済みなので今度はマージになる
		err = run()
	}
	if err != nil {
		if errors.Is(err, errCartRace) {
			return CartLineOutput{}, dbError(err)
		}
		return CartLineOutput{}, err
	}

	return CartLineOutput{StoreProductID: in.StoreProductID, BuyCount: in.BuyCount}, nil
}

func (u *CartUsecase) addToCart(ctx context.Context, r repo.TxRepos, userID int64, in AddToCartInput) error {
	sp, err := r.StoreProducts().FindByID(ctx, in.StoreProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "store product not found")
	}
	if err != nil {
		return dbError(err)
	}
	if in.BuyCount > sp.StockQuantity {
		return NewHTTPError(http.StatusUnprocessableEntity, "not enough stock")
	}

	now := u.clock.Now()

	existing, err := r.Purchases().FindInCartForUpdate(ctx, userID, sp.ID)
	if errors.Is(err, repo.ErrNotFound) {
		_, err := r.Purchases().Create(ctx, model.Purchase{
			UserID:         userID,
			StoreProductID: sp.ID,
			Quantity:       in.BuyCount,
			TotalPrice:     model.LineTotal(sp.UnitPrice, in.BuyCount),
			Status:         model.PurchaseStatusInCart,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return errCartRace
		}
		if err != nil {
			return dbError(err)
		}
		return nil
	}
	if err != nil {
		return dbError(err)
	}

	//マージ後の数量で在庫チェック
	merged := existing.Quantity + in.BuyCount
	if merged > sp.StockQuantity {
		return NewHTTPError(http.StatusUnprocessableEntity, "not enough stock")
	}
	if err := r.Purchases().UpdateQuantity(ctx, existing.ID, merged, model.LineTotal(sp.UnitPrice, merged), now); err != nil {
		return dbError(err)
	}
	return nil
}

// カート内の数量変更。在庫チェックは増分だけ見る
func (u *CartUsecase) UpdatePurchase(ctx context.Context, actor Actor, in UpdatePurchaseInput) (out UpdatePurchaseOutput, err error) {
	ctx, span := startSpan(ctx, "cart.update", actor, attribute.Int64("purchase.id", in.PurchaseID))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleUser); err != nil {
		return UpdatePurchaseOutput{}, err
	}
	if in.PurchaseID <= 0 {
		return UpdatePurchaseOutput{}, NewHTTPError(http.StatusBadRequest, "invalid purchase_id")
	}
	if in.BuyCount <= 0 {
		return UpdatePurchaseOutput{}, NewHTTPError(http.StatusBadRequest, "invalid buy_count")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Purchases().FindByIDForUpdate(ctx, in.PurchaseID)
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
		if sp.StockQuantity < in.BuyCount-p.Quantity {
			return NewHTTPError(http.StatusUnprocessableEntity, "not enough stock")
		}

		total := model.LineTotal(sp.UnitPrice, in.BuyCount)
		if err := r.Purchases().UpdateQuantity(ctx, p.ID, in.BuyCount, total, u.clock.Now()); err != nil {
			return dbError(err)
		}
		out = UpdatePurchaseOutput{PurchaseID: p.ID, BuyCount: in.BuyCount, TotalPrice: total}
		return nil
	})
	if err != nil {
		return UpdatePurchaseOutput{}, err
	}
	return out, nil
}

// IN_CARTの行をまとめて削除。1件でもダメなら全部やめる
func (u *CartUsecase) DeletePurchases(ctx context.Context, actor Actor, purchaseIDs []int64) (out DeletePurchasesOutput, err error) {
	ctx, span := startSpan(ctx, "cart.delete", actor, attribute.Int("purchase.count", len(purchaseIDs)))
	defer func() { endSpan(span, err) }()

	if actor.UserID <= 0 {
		return DeletePurchasesOutput{}, errForbidden()
	}
	ids, err := normalizeIDs(purchaseIDs)
	if err != nil {
		return DeletePurchasesOutput{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
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
		}

		n, err := r.Purchases().DeleteInCart(ctx, actor.UserID, ids)
		if err != nil {
			return dbError(err)
		}
		if n != int64(len(ids)) {
			return dbError(repo.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return DeletePurchasesOutput{}, err
	}
	return DeletePurchasesOutput{PurchaseIDs: ids}, nil
}

// 一覧。USERは自分の分だけ、スタッフは全件
func (u *CartUsecase) ListPurchases(ctx context.Context, actor Actor, in ListPurchasesInput) (out ListPurchasesOutput, err error) {
	ctx, span := startSpan(ctx, "purchases.list", actor, attribute.String("purchase.status", in.Status))
	defer func() { endSpan(span, err) }()

	if err := actor.require(model.RoleUser, model.RoleAdmin, model.RoleCourier); err != nil {
		return ListPurchasesOutput{}, err
	}

	f := repo.PurchaseListFilter{Page: in.Page, Limit: in.Limit}
	//ALLも実ステータスと同じく大小文字・前後空白を無視
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	switch {
	case status == "":
		return ListPurchasesOutput{}, NewHTTPError(http.StatusBadRequest, "status is required")
	case status == model.PurchaseStatusAll:
		// 絞り込みなし
	default:
		s, ok := model.ParsePurchaseStatus(status)
		if !ok {
			return ListPurchasesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = &s
	}

	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Page < 1 {
		return ListPurchasesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > maxListLimit {
		return ListPurchasesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	if !actor.Role.IsStaff() {
		uid := actor.UserID
		f.UserID = &uid
	}

	var (
		items []model.Purchase
		total int64
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		items, total, err = r.Purchases().List(ctx, f)
		if err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return ListPurchasesOutput{}, err
	}

	outs := make([]PurchaseOutput, 0, len(items))
	for _, p := range items {
		outs = append(outs, toPurchaseOutput(p))
	}
	return ListPurchasesOutput{
		Purchases: outs,
		Pagination: Pagination{
			Total:    total,
			Page:     f.Page,
			Limit:    f.Limit,
			PageSize: pageCount(total, f.Limit),
		},
	}, nil
}

func toPurchaseOutput(p model.Purchase) PurchaseOutput {
	return PurchaseOutput{
		ID:             p.ID,
		UserID:         p.UserID,
		StoreProductID: p.StoreProductID,
		Quantity:       p.Quantity,
		TotalPrice:     p.TotalPrice,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		StoreProduct:   p.StoreProduct,
		Shipping:       p.Shipping,
	}
}

// ceil(total/limit)
func pageCount(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}

// 重複を除いて昇順に。行ロックの順番をそろえる
func normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "purchase_id is required")
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid purchase_id")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
