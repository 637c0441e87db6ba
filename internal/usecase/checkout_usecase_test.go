package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCheckout(s *memStore, idem repo.IdempotencyStore) *CheckoutUsecase {
	return NewCheckoutUsecase(s, idem, fixedClock{t: testNow})
}

func TestBuyProducts_Forbidden(t *testing.T) {
	s := newMemStore()
	_, err := newCheckout(s, nil).BuyProducts(context.Background(), admin, BuyProductsInput{PurchaseIDs: []int64{1}})
	assert.Equal(t, http.StatusForbidden, httpStatus(err))

	_, err = newCheckout(s, nil).BuyProducts(context.Background(), courier, BuyProductsInput{PurchaseIDs: []int64{1}})
	assert.Equal(t, http.StatusForbidden, httpStatus(err))
}

func TestBuyProducts_Errors(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	other := s.addPurchase(buyer2.UserID, sp.ID, 1, model.PurchaseStatusInCart)
	done := s.addPurchase(buyer.UserID, sp.ID, 1, model.PurchaseStatusPicking)
	uc := newCheckout(s, nil)
	ctx := context.Background()

	_, err := uc.BuyProducts(ctx, buyer, BuyProductsInput{})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	_, err = uc.BuyProducts(ctx, buyer, BuyProductsInput{PurchaseIDs: []int64{999}})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	_, err = uc.BuyProducts(ctx, buyer, BuyProductsInput{PurchaseIDs: []int64{other.ID}})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	_, err = uc.BuyProducts(ctx, buyer, BuyProductsInput{PurchaseIDs: []int64{done.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))

	assert.Equal(t, int64(5), s.product(sp.ID).StockQuantity)
}

func TestBuyProducts_ReservesAndTransitions(t *testing.T) {
	s := newMemStore()
	sp1 := s.addProduct(5, "1")
	sp2 := s.addProduct(7, "1")
	p1 := s.addPurchase(buyer.UserID, sp1.ID, 2, model.PurchaseStatusInCart)
	p2 := s.addPurchase(buyer.UserID, sp2.ID, 7, model.PurchaseStatusInCart)

	out, err := newCheckout(s, nil).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p2.ID, p1.ID, p2.ID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{p1.ID, p2.ID}, out.PurchaseIDs)
	assert.Equal(t, model.PurchaseStatusWaitingForConfirmation, out.Status)
	assert.False(t, out.Replayed)

	assert.Equal(t, int64(3), s.product(sp1.ID).StockQuantity)
	assert.Equal(t, int64(0), s.product(sp2.ID).StockQuantity)

	for _, id := range []int64{p1.ID, p2.ID} {
		got, _ := s.purchase(id)
		assert.Equal(t, model.PurchaseStatusWaitingForConfirmation, got.Status)
		assert.Equal(t, testNow, got.UpdatedAt)

		mv := s.movementsFor(id)
		require.Len(t, mv, 1)
		assert.Equal(t, model.MovementReserve, mv[0].Kind)
	}

	//2回目は状態が違うので弾かれる
	_, err = newCheckout(s, nil).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p1.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))
	assert.Equal(t, int64(3), s.product(sp1.ID).StockQuantity)
}

func TestBuyProducts_BatchIsAtomic(t *testing.T) {
	s := newMemStore()
	sp1 := s.addProduct(5, "1")
	sp2 := s.addProduct(1, "1")
	p1 := s.addPurchase(buyer.UserID, sp1.ID, 2, model.PurchaseStatusInCart)
	p2 := s.addPurchase(buyer.UserID, sp2.ID, 3, model.PurchaseStatusInCart)

	_, err := newCheckout(s, nil).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p1.ID, p2.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))

	for _, id := range []int64{p1.ID, p2.ID} {
		got, _ := s.purchase(id)
		assert.Equal(t, model.PurchaseStatusInCart, got.Status)
		assert.Empty(t, s.movementsFor(id))
	}
	assert.Equal(t, int64(5), s.product(sp1.ID).StockQuantity)
	assert.Equal(t, int64(1), s.product(sp2.ID).StockQuantity)
}

// 在庫を減らした後のDB障害でも全部戻る
func TestBuyProducts_InfraFailureRollsBackReservations(t *testing.T) {
	s := newMemStore()
	sp1 := s.addProduct(5, "1")
	sp2 := s.addProduct(5, "1")
	p1 := s.addPurchase(buyer.UserID, sp1.ID, 2, model.PurchaseStatusInCart)
	p2 := s.addPurchase(buyer.UserID, sp2.ID, 2, model.PurchaseStatusInCart)
	s.fail["Purchases.BatchTransitionStatus"] = errors.New("connection lost")

	_, err := newCheckout(s, nil).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p1.ID, p2.ID}})
	assert.Equal(t, http.StatusInternalServerError, httpStatus(err))

	assert.Equal(t, int64(5), s.product(sp1.ID).StockQuantity)
	assert.Equal(t, int64(5), s.product(sp2.ID).StockQuantity)
	got, _ := s.purchase(p1.ID)
	assert.Equal(t, model.PurchaseStatusInCart, got.Status)
}

func TestBuyProducts_NoOversellUnderConcurrency(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	a := s.addPurchase(buyer.UserID, sp.ID, 5, model.PurchaseStatusInCart)
	b := s.addPurchase(buyer2.UserID, sp.ID, 5, model.PurchaseStatusInCart)
	uc := newCheckout(s, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []struct {
		actor Actor
		id    int64
	}{{buyer, a.ID}, {buyer2, b.ID}} {
		wg.Add(1)
		go func(i int, actor Actor, id int64) {
			defer wg.Done()
			_, errs[i] = uc.BuyProducts(context.Background(), actor, BuyProductsInput{PurchaseIDs: []int64{id}})
		}(i, c.actor, c.id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), s.product(sp.ID).StockQuantity)
}

func TestBuyProducts_ManyBuyersNeverGoNegative(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(10, "1")
	uc := newCheckout(s, nil)

	type line struct {
		actor Actor
		id    int64
	}
	lines := make([]line, 0, 25)
	for i := 0; i < 25; i++ {
		a := Actor{UserID: int64(100 + i), Role: model.RoleUser}
		p := s.addPurchase(a.UserID, sp.ID, 1, model.PurchaseStatusInCart)
		lines = append(lines, line{actor: a, id: p.ID})
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, l := range lines {
		wg.Add(1)
		go func(l line) {
			defer wg.Done()
			if _, err := uc.BuyProducts(context.Background(), l.actor, BuyProductsInput{PurchaseIDs: []int64{l.id}}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(l)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, int64(0), s.product(sp.ID).StockQuantity)
}

// =====================
// 二重送信防止（mock）
// =====================

type idempotencyStoreMock struct{ mock.Mock }

func (m *idempotencyStoreMock) Begin(ctx context.Context, key string, fingerprint string) (repo.IdempotencyRecord, error) {
	args := m.Called(ctx, key, fingerprint)
	rec, _ := args.Get(0).(repo.IdempotencyRecord)
	return rec, args.Error(1)
}

func (m *idempotencyStoreMock) Complete(ctx context.Context, key string, lease string, payload []byte) error {
	args := m.Called(ctx, key, lease, payload)
	return args.Error(0)
}

func (m *idempotencyStoreMock) Abort(ctx context.Context, key string, lease string) error {
	args := m.Called(ctx, key, lease)
	return args.Error(0)
}

func TestBuyProducts_IdempotentFirstRunStoresResult(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)

	idem := &idempotencyStoreMock{}
	idem.On("Begin", mock.Anything, "checkout:10:req-1", strconv.FormatInt(p.ID, 10)).
		Return(repo.IdempotencyRecord{State: repo.IdempotencyNew, Lease: "lease-1"}, nil)
	idem.On("Complete", mock.Anything, "checkout:10:req-1", "lease-1", mock.MatchedBy(func(b []byte) bool {
		var got BuyProductsOutput
		return json.Unmarshal(b, &got) == nil && len(got.PurchaseIDs) == 1 && got.PurchaseIDs[0] == p.ID
	})).Return(nil)

	out, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}, IdempotencyKey: " req-1 "})
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, int64(3), s.product(sp.ID).StockQuantity)
	idem.AssertExpectations(t)
}

func TestBuyProducts_IdempotentReplayDoesNotReserveAgain(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)

	prev, _ := json.Marshal(BuyProductsOutput{PurchaseIDs: []int64{p.ID}, Status: model.PurchaseStatusWaitingForConfirmation})
	idem := &idempotencyStoreMock{}
	idem.On("Begin", mock.Anything, "checkout:10:req-1", strconv.FormatInt(p.ID, 10)).
		Return(repo.IdempotencyRecord{State: repo.IdempotencyDone, Fingerprint: strconv.FormatInt(p.ID, 10), Payload: prev}, nil)

	out, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}, IdempotencyKey: "req-1"})
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, []int64{p.ID}, out.PurchaseIDs)

	assert.Equal(t, int64(5), s.product(sp.ID).StockQuantity)
	idem.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuyProducts_IdempotentInFlightIsConflict(t *testing.T) {
	idem := &idempotencyStoreMock{}
	idem.On("Begin", mock.Anything, "checkout:10:req-1", "1").Return(repo.IdempotencyRecord{State: repo.IdempotencyInFlight, Fingerprint: "1"}, nil)

	_, err := newCheckout(newMemStore(), idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{1}, IdempotencyKey: "req-1"})
	assert.Equal(t, http.StatusConflict, httpStatus(err))
}

func TestBuyProducts_IdempotentFailureReleasesKey(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(1, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)

	idem := &idempotencyStoreMock{}
	idem.On("Begin", mock.Anything, "checkout:10:req-1", mock.Anything).Return(repo.IdempotencyRecord{State: repo.IdempotencyNew, Lease: "lease-1"}, nil)
	idem.On("Abort", mock.Anything, "checkout:10:req-1", "lease-1").Return(nil)

	_, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}, IdempotencyKey: "req-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))
	idem.AssertExpectations(t)
	idem.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuyProducts_IdempotencyStoreDown(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)

	idem := &idempotencyStoreMock{}
	idem.On("Begin", mock.Anything, mock.Anything, mock.Anything).Return(repo.IdempotencyRecord{}, errors.New("dial tcp: refused"))

	_, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}, IdempotencyKey: "req-1"})
	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, "idempotency store error", he.Message)
	assert.Equal(t, int64(5), s.product(sp.ID).StockQuantity)
}

func TestBuyProducts_WithoutKeySkipsStore(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)
	idem := &idempotencyStoreMock{}

	_, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}})
	require.NoError(t, err)
	idem.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything, mock.Anything)
}

// 同じキーで別の購入を頼んでも前回の結果は返さない
func TestBuyProducts_IdempotencyKeyReusedForOtherPurchases(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	first := s.addPurchase(buyer.UserID, sp.ID, 1, model.PurchaseStatusWaitingForConfirmation)
	second := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)
	firstFP := strconv.FormatInt(first.ID, 10)
	secondFP := strconv.FormatInt(second.ID, 10)

	prev, _ := json.Marshal(BuyProductsOutput{PurchaseIDs: []int64{first.ID}, Status: model.PurchaseStatusWaitingForConfirmation})

	cases := []struct {
		name string
		rec  repo.IdempotencyRecord
	}{
		{"done", repo.IdempotencyRecord{State: repo.IdempotencyDone, Fingerprint: firstFP, Payload: prev}},
		{"in flight", repo.IdempotencyRecord{State: repo.IdempotencyInFlight, Fingerprint: firstFP}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idem := &idempotencyStoreMock{}
			idem.On("Begin", mock.Anything, "checkout:10:req-1", secondFP).Return(tc.rec, nil)

			out, err := newCheckout(s, idem).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{second.ID}, IdempotencyKey: "req-1"})
			assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(err))
			assert.False(t, out.Replayed)
			assert.Empty(t, out.PurchaseIDs)

			got, ok := s.purchase(second.ID)
			require.True(t, ok)
			assert.Equal(t, model.PurchaseStatusInCart, got.Status)
			assert.Equal(t, int64(5), s.product(sp.ID).StockQuantity)
			idem.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCheckoutFingerprint(t *testing.T) {
	ids, err := normalizeIDs([]int64{9, 3, 9, 12})
	require.NoError(t, err)
	assert.Equal(t, "3,9,12", checkoutFingerprint(ids))
}

// 確保の時点で商品行が消えていたら在庫不足ではなく404
func TestBuyProducts_ProductGoneAtReserveIsNotFound(t *testing.T) {
	s := newMemStore()
	sp := s.addProduct(5, "1")
	p := s.addPurchase(buyer.UserID, sp.ID, 2, model.PurchaseStatusInCart)
	s.fail["Inventory.DecreaseStockIfEnough"] = repo.ErrNotFound

	_, err := newCheckout(s, nil).BuyProducts(context.Background(), buyer, BuyProductsInput{PurchaseIDs: []int64{p.ID}})
	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, "store product not found", he.Message)

	got, _ := s.purchase(p.ID)
	assert.Equal(t, model.PurchaseStatusInCart, got.Status)
}
