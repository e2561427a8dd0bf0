package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
	"possync/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	stores           map[string]domain.Store
	products         map[string]domain.Product
	storeStock       map[string]domain.StoreStock
	salesByID        map[string]*domain.Sale
	salesByOfflineID map[string]*domain.Sale
	movements        []domain.InventoryMovement
	dailySummaries   map[string]domain.DailySalesSummary
	productSummaries map[string][]domain.ProductSalesSummary
	usersByUsername  map[string]domain.UserAccount
}

func newEmpty() *Store {
	return &Store{
		stores:           make(map[string]domain.Store),
		products:         make(map[string]domain.Product),
		storeStock:       make(map[string]domain.StoreStock),
		salesByID:        make(map[string]*domain.Sale),
		salesByOfflineID: make(map[string]*domain.Sale),
		movements:        make([]domain.InventoryMovement, 0, 128),
		dailySummaries:   make(map[string]domain.DailySalesSummary),
		productSummaries: make(map[string][]domain.ProductSalesSummary),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// Ping always succeeds; the store lives in process memory.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetStore(_ context.Context, tenantID string, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[storeID]
	if !ok || st.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) FirstStore(ctx context.Context, tenantID string) (*domain.Store, error) {
	stores, err := s.ListStores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return nil, store.ErrNotFound
	}
	first := stores[0]
	return &first, nil
}

// ListStores orders by creation time, then id.
func (s *Store) ListStores(_ context.Context, tenantID string) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, 4)
	for _, st := range s.stores {
		if st.TenantID == tenantID {
			stores = append(stores, st)
		}
	}
	slices.SortFunc(stores, func(a, b domain.Store) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return stores, nil
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.TenantID != tenantID || !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

// GetProductsByIDs omits ids that are unknown, inactive or owned by another tenant.
func (s *Store) GetProductsByIDs(_ context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.Active && p.TenantID == tenantID {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) FindSaleByOfflineID(_ context.Context, tenantID string, offlineID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByOfflineID[offlineKey(tenantID, offlineID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByID(_ context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListCompletedSales(_ context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.salesByID {
		if sale.TenantID != tenantID || sale.StoreID != storeID || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.OccurredAt.Before(from) || !sale.OccurredAt.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Compare(b.OccurredAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sales, nil
}

// ListStoreStock reports a product without a store-level row at its aggregate stock,
// the value the row would be created with.
func (s *Store) ListStoreStock(_ context.Context, tenantID string, storeID string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.StockLevel, 0, len(s.products))
	for _, p := range s.products {
		if p.TenantID != tenantID || !p.Active {
			continue
		}
		level := domain.StockLevel{
			TenantID:     tenantID,
			StoreID:      storeID,
			ProductID:    p.ID,
			ProductStock: p.Stock,
			StoreStock:   p.Stock,
			MinStock:     p.MinStock,
		}
		if row, ok := s.storeStock[stockKey(tenantID, storeID, p.ID)]; ok {
			level.StoreStock = row.Quantity
		}
		levels = append(levels, level)
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return levels, nil
}

// ListMovements returns newest first.
func (s *Store) ListMovements(_ context.Context, filter store.MovementFilter) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, 32)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.TenantID != filter.TenantID {
			continue
		}
		if filter.StoreID != "" && m.StoreID != filter.StoreID {
			continue
		}
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !m.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ReplaceDaySummaries(_ context.Context, daily domain.DailySalesSummary, products []domain.ProductSalesSummary) error {
	if daily.TenantID == "" || daily.StoreID == "" || daily.Date.IsZero() {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey(daily.TenantID, daily.StoreID, daily.Date)
	s.dailySummaries[key] = daily
	rows := make([]domain.ProductSalesSummary, len(products))
	for i, p := range products {
		p.TenantID, p.StoreID, p.Date = daily.TenantID, daily.StoreID, daily.Date
		rows[i] = p
	}
	s.productSummaries[key] = rows
	return nil
}

func (s *Store) ListDailySummaries(_ context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.DailySalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailySalesSummary, 0, 8)
	for _, summary := range s.dailySummaries {
		if summary.TenantID != tenantID || summary.StoreID != storeID {
			continue
		}
		if summary.Date.Before(from) || summary.Date.After(to) {
			continue
		}
		result = append(result, summary)
	}
	slices.SortFunc(result, func(a, b domain.DailySalesSummary) int {
		return a.Date.Compare(b.Date)
	})
	return result, nil
}

// ListProductSummaries orders by date, then store, then product.
func (s *Store) ListProductSummaries(_ context.Context, filter store.ProductSummaryFilter) ([]domain.ProductSalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductSalesSummary, 0, 16)
	for _, rows := range s.productSummaries {
		for _, row := range rows {
			if row.TenantID != filter.TenantID {
				continue
			}
			if filter.StoreID != "" && row.StoreID != filter.StoreID {
				continue
			}
			if filter.ProductID != "" && row.ProductID != filter.ProductID {
				continue
			}
			if row.Date.Before(filter.From) || row.Date.After(filter.To) {
				continue
			}
			result = append(result, row)
		}
	}
	slices.SortFunc(result, func(a, b domain.ProductSalesSummary) int {
		if !a.Date.Equal(b.Date) {
			return a.Date.Compare(b.Date)
		}
		if a.StoreID != b.StoreID {
			return strings.Compare(a.StoreID, b.StoreID)
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return result, nil
}

// RunInTx holds the write lock for the whole of fn, so fn must only touch the store
// through tx. Staged writes are applied when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		stock:    make(map[string]domain.StockLevel),
		products: make(map[string]int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

type memTx struct {
	s         *Store
	stock     map[string]domain.StockLevel
	products  map[string]int
	movements []domain.InventoryMovement
	sales     []*domain.Sale
}

func (t *memTx) LockStock(_ context.Context, tenantID string, storeID string, productID string) (domain.StockLevel, error) {
	key := stockKey(tenantID, storeID, productID)
	if level, ok := t.stock[key]; ok {
		return level, nil
	}

	product, ok := t.s.products[productID]
	if !ok || product.TenantID != tenantID {
		return domain.StockLevel{}, store.ErrNotFound
	}
	if st, ok := t.s.stores[storeID]; !ok || st.TenantID != tenantID {
		return domain.StockLevel{}, store.ErrNotFound
	}
	productStock := product.Stock
	if staged, ok := t.products[productID]; ok {
		productStock = staged
	}

	level := domain.StockLevel{
		TenantID:     tenantID,
		StoreID:      storeID,
		ProductID:    productID,
		ProductStock: productStock,
		StoreStock:   productStock,
		MinStock:     product.MinStock,
	}
	if row, ok := t.s.storeStock[key]; ok {
		level.StoreStock = row.Quantity
	}
	t.stock[key] = level
	return level, nil
}

func (t *memTx) SaveStock(_ context.Context, level domain.StockLevel) error {
	if level.ProductStock < 0 || level.StoreStock < 0 {
		return store.ErrInvalidInput
	}
	t.stock[stockKey(level.TenantID, level.StoreID, level.ProductID)] = level
	t.products[level.ProductID] = level.ProductStock
	// Other stores' staged views of the same product share the aggregate.
	for key, staged := range t.stock {
		if staged.ProductID == level.ProductID {
			staged.ProductStock = level.ProductStock
			t.stock[key] = staged
		}
	}
	return nil
}

func (t *memTx) AppendMovement(_ context.Context, movement domain.InventoryMovement) error {
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	t.movements = append(t.movements, movement)
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.TenantID == "" || sale.OfflineID == "" {
		return store.ErrInvalidInput
	}
	key := offlineKey(sale.TenantID, sale.OfflineID)
	if _, exists := t.s.salesByOfflineID[key]; exists {
		return store.ErrDuplicateOfflineID
	}
	for _, staged := range t.sales {
		if offlineKey(staged.TenantID, staged.OfflineID) == key {
			return store.ErrDuplicateOfflineID
		}
	}
	t.sales = append(t.sales, cloneSale(&sale))
	return nil
}

func (t *memTx) apply() {
	now := time.Now().UTC()
	for key, level := range t.stock {
		t.s.storeStock[key] = domain.StoreStock{
			TenantID:  level.TenantID,
			StoreID:   level.StoreID,
			ProductID: level.ProductID,
			Quantity:  level.StoreStock,
			UpdatedAt: now,
		}
	}
	for productID, qty := range t.products {
		p := t.s.products[productID]
		p.Stock = qty
		t.s.products[productID] = p
	}
	t.s.movements = append(t.s.movements, t.movements...)
	for _, sale := range t.sales {
		t.s.salesByID[sale.ID] = sale
		t.s.salesByOfflineID[offlineKey(sale.TenantID, sale.OfflineID)] = sale
	}
}

func offlineKey(tenantID string, offlineID string) string {
	return tenantID + "::" + offlineID
}

func stockKey(tenantID string, storeID string, productID string) string {
	return tenantID + "::" + storeID + "::" + productID
}

func summaryKey(tenantID string, storeID string, date time.Time) string {
	return tenantID + "::" + storeID + "::" + date.Format(time.DateOnly)
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleLineItem, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	return &dup
}
