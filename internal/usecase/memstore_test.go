package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// テスト用のインメモリDB。WithinTxは全体ロックで直列化し、エラーなら元に戻す
type memStore struct {
	mu sync.Mutex

	nextID    int64
	products  map[int64]model.StoreProduct
	purchases map[int64]model.Purchase
	shippings map[int64]model.Shipping
	movements []model.InventoryMovement
	audits    []model.AuditLog

	// "Purchases.Create" などでエラーを差し込む
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[int64]model.StoreProduct{},
		purchases: map[int64]model.Purchase{},
		shippings: map[int64]model.Shipping{},
		fail:      map[string]error{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) injected(op string) error {
	return s.fail[op]
}

type memSnapshot struct {
	nextID    int64
	products  map[int64]model.StoreProduct
	purchases map[int64]model.Purchase
	shippings map[int64]model.Shipping
	movements []model.InventoryMovement
	audits    []model.AuditLog
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextID:    s.nextID,
		products:  make(map[int64]model.StoreProduct, len(s.products)),
		purchases: make(map[int64]model.Purchase, len(s.purchases)),
		shippings: make(map[int64]model.Shipping, len(s.shippings)),
		movements: append([]model.InventoryMovement(nil), s.movements...),
		audits:    append([]model.AuditLog(nil), s.audits...),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.purchases {
		snap.purchases[k] = v
	}
	for k, v := range s.shippings {
		snap.shippings[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.products = snap.products
	s.purchases = snap.purchases
	s.shippings = snap.shippings
	s.movements = snap.movements
	s.audits = snap.audits
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memRepos{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// --- テストのセットアップ/確認用（ロックを取る） ---

func (s *memStore) addProduct(stock int64, price string) model.StoreProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := model.StoreProduct{
		ID:            s.id(),
		StoreID:       1,
		ProductID:     100,
		UnitPrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	s.products[sp.ID] = sp
	return sp
}

func (s *memStore) addPurchase(userID, storeProductID, qty int64, status model.PurchaseStatus) model.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.products[storeProductID]
	p := model.Purchase{
		ID:             s.id(),
		UserID:         userID,
		StoreProductID: storeProductID,
		Quantity:       qty,
		TotalPrice:     model.LineTotal(sp.UnitPrice, qty),
		Status:         status,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	s.purchases[p.ID] = p
	return p
}

func (s *memStore) product(id int64) model.StoreProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) purchase(id int64) (model.Purchase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	return p, ok
}

func (s *memStore) deleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *memStore) movementsFor(purchaseID int64) []model.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryMovement
	for _, m := range s.movements {
		if m.PurchaseID == purchaseID {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

func (s *memStore) shippingFor(purchaseID int64) (model.Shipping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shippings {
		if sh.PurchaseID == purchaseID {
			return sh, true
		}
	}
	return model.Shipping{}, false
}

// --- TxRepos ---

type memRepos struct{ s *memStore }

func (r *memRepos) Purchases() repo.PurchaseRepository         { return memPurchases{r.s} }
func (r *memRepos) StoreProducts() repo.StoreProductRepository { return memProducts{r.s} }
func (r *memRepos) Inventory() repo.InventoryRepository        { return memInventory{r.s} }
func (r *memRepos) Shippings() repo.ShippingRepository         { return memShippings{r.s} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository         { return memAudits{r.s} }

type memPurchases struct{ s *memStore }

func (m memPurchases) FindByID(ctx context.Context, id int64) (model.Purchase, error) {
	if err := m.s.injected("Purchases.FindByID"); err != nil {
		return model.Purchase{}, err
	}
	p, ok := m.s.purchases[id]
	if !ok {
		return model.Purchase{}, repo.ErrNotFound
	}
	return p, nil
}

func (m memPurchases) FindByIDForUpdate(ctx context.Context, id int64) (model.Purchase, error) {
	if err := m.s.injected("Purchases.FindByIDForUpdate"); err != nil {
		return model.Purchase{}, err
	}
	return m.FindByID(ctx, id)
}

func (m memPurchases) FindInCartForUpdate(ctx context.Context, userID, storeProductID int64) (model.Purchase, error) {
	for _, p := range m.s.purchases {
		if p.UserID == userID && p.StoreProductID == storeProductID && p.Status == model.PurchaseStatusInCart {
			return p, nil
		}
	}
	return model.Purchase{}, repo.ErrNotFound
}

func (m memPurchases) Create(ctx context.Context, p model.Purchase) (int64, error) {
	if err := m.s.injected("Purchases.Create"); err != nil {
		return 0, err
	}
	if p.Status == model.PurchaseStatusInCart {
		if _, err := m.FindInCartForUpdate(ctx, p.UserID, p.StoreProductID); err == nil {
			return 0, repo.ErrDuplicate
		}
	}
	p.ID = m.s.id()
	m.s.purchases[p.ID] = p
	return p.ID, nil
}

func (m memPurchases) UpdateQuantity(ctx context.Context, id int64, qty int64, total decimal.Decimal, now time.Time) error {
	p, ok := m.s.purchases[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Quantity = qty
	p.TotalPrice = total
	p.UpdatedAt = now
	m.s.purchases[id] = p
	return nil
}

func (m memPurchases) TransitionStatus(ctx context.Context, id int64, from, to model.PurchaseStatus, now time.Time) error {
	p, ok := m.s.purchases[id]
	if !ok || p.Status != from {
		return repo.ErrConflict
	}
	p.Status = to
	p.UpdatedAt = now
	m.s.purchases[id] = p
	return nil
}

func (m memPurchases) BatchTransitionStatus(ctx context.Context, userID int64, ids []int64, from, to model.PurchaseStatus, now time.Time) (int64, error) {
	if err := m.s.injected("Purchases.BatchTransitionStatus"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		p, ok := m.s.purchases[id]
		if !ok || p.UserID != userID || p.Status != from {
			continue
		}
		p.Status = to
		p.UpdatedAt = now
		m.s.purchases[id] = p
		n++
	}
	return n, nil
}

func (m memPurchases) DeleteInCart(ctx context.Context, userID int64, ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		p, ok := m.s.purchases[id]
		if !ok || p.UserID != userID || p.Status != model.PurchaseStatusInCart {
			continue
		}
		delete(m.s.purchases, id)
		n++
	}
	return n, nil
}

func (m memPurchases) List(ctx context.Context, f repo.PurchaseListFilter) ([]model.Purchase, int64, error) {
	if err := m.s.injected("Purchases.List"); err != nil {
		return nil, 0, err
	}
	var all []model.Purchase
	for _, p := range m.s.purchases {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	page := append([]model.Purchase(nil), all[start:end]...)
	for i := range page {
		if sp, ok := m.s.products[page[i].StoreProductID]; ok {
			sp := sp
			page[i].StoreProduct = &sp
		}
		for _, sh := range m.s.shippings {
			if sh.PurchaseID == page[i].ID {
				sh := sh
				page[i].Shipping = &sh
			}
		}
	}
	return page, total, nil
}

type memProducts struct{ s *memStore }

func (m memProducts) FindByID(ctx context.Context, id int64) (model.StoreProduct, error) {
	sp, ok := m.s.products[id]
	if !ok {
		return model.StoreProduct{}, repo.ErrNotFound
	}
	return sp, nil
}

type memInventory struct{ s *memStore }

func (m memInventory) DecreaseStockIfEnough(ctx context.Context, id int64, qty int64) (bool, error) {
	if err := m.s.injected("Inventory.DecreaseStockIfEnough"); err != nil {
		return false, err
	}
	sp, ok := m.s.products[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if sp.StockQuantity < qty {
		return false, nil
	}
	sp.StockQuantity -= qty
	m.s.products[id] = sp
	return true, nil
}

func (m memInventory) IncreaseStock(ctx context.Context, id int64, qty int64) error {
	sp, ok := m.s.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	sp.StockQuantity += qty
	m.s.products[id] = sp
	return nil
}

func (m memInventory) IncreaseSold(ctx context.Context, id int64, qty int64) error {
	sp, ok := m.s.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	sp.Sold += qty
	m.s.products[id] = sp
	return nil
}

func (m memInventory) RecordMovement(ctx context.Context, mv model.InventoryMovement) error {
	for _, existing := range m.s.movements {
		if existing.PurchaseID == mv.PurchaseID && existing.Kind == mv.Kind {
			return repo.ErrDuplicate
		}
	}
	mv.ID = m.s.id()
	m.s.movements = append(m.s.movements, mv)
	return nil
}

type memShippings struct{ s *memStore }

func (m memShippings) Create(ctx context.Context, sh model.Shipping) (int64, error) {
	for _, existing := range m.s.shippings {
		if existing.PurchaseID == sh.PurchaseID {
			return 0, repo.ErrDuplicate
		}
	}
	sh.ID = m.s.id()
	m.s.shippings[sh.ID] = sh
	return sh.ID, nil
}

func (m memShippings) FindByID(ctx context.Context, id int64) (model.Shipping, error) {
	sh, ok := m.s.shippings[id]
	if !ok {
		return model.Shipping{}, repo.ErrNotFound
	}
	return sh, nil
}

func (m memShippings) Touch(ctx context.Context, id int64, now time.Time) error {
	sh, ok := m.s.shippings[id]
	if !ok {
		return repo.ErrNotFound
	}
	sh.UpdatedAt = now
	m.s.shippings[id] = sh
	return nil
}

type memAudits struct{ s *memStore }

func (m memAudits) Create(ctx context.Context, log model.AuditLog) error {
	if err := m.s.injected("AuditLogs.Create"); err != nil {
		return err
	}
	log.ID = m.s.id()
	m.s.audits = append(m.s.audits, log)
	return nil
}

func (m memAudits) ListTrail(ctx context.Context, q repo.AuditTrailQuery) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, l := range m.s.audits {
		if l.ResourceType != q.ResourceType || l.ResourceID != q.ResourceID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// --- 共通 ---

var testNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var (
	buyer   = Actor{UserID: 10, Role: model.RoleUser}
	buyer2  = Actor{UserID: 11, Role: model.RoleUser}
	admin   = Actor{UserID: 1, Role: model.RoleAdmin}
	courier = Actor{UserID: 2, Role: model.RoleCourier}
)

func httpStatus(err error) int {
	if he, ok := AsHTTPError(err); ok {
		return he.Status
	}
	return 0
}
