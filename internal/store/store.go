package store

import (
	"context"
	"errors"
	"time"

	"possync/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateOfflineID is returned only for the (tenant_id, offline_id) uniqueness
	// constraint on sales. Other constraint violations surface as plain errors.
	ErrDuplicateOfflineID = errors.New("duplicate offline id")
	ErrInvalidInput       = errors.New("invalid input")
)

// Repository is the backing store of the sync engine. Writes that must be atomic with a
// sale go through RunInTx.
type Repository interface {
	GetStore(ctx context.Context, tenantID string, storeID string) (*domain.Store, error)
	FirstStore(ctx context.Context, tenantID string) (*domain.Store, error)
	ListStores(ctx context.Context, tenantID string) ([]domain.Store, error)

	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error)

	FindSaleByOfflineID(ctx context.Context, tenantID string, offlineID string) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error)
	// ListCompletedSales returns completed sales of a store with from <= occurred_at < to,
	// line items included.
	ListCompletedSales(ctx context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.Sale, error)

	ListStoreStock(ctx context.Context, tenantID string, storeID string) ([]domain.StockLevel, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]domain.InventoryMovement, error)

	// ReplaceDaySummaries swaps the daily summary and every product summary of one
	// (store, date) in a single unit.
	ReplaceDaySummaries(ctx context.Context, daily domain.DailySalesSummary, products []domain.ProductSalesSummary) error
	ListDailySummaries(ctx context.Context, tenantID string, storeID string, from time.Time, to time.Time) ([]domain.DailySalesSummary, error)
	ListProductSummaries(ctx context.Context, filter ProductSummaryFilter) ([]domain.ProductSalesSummary, error)

	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// Tx is the unit of work a sale or a stock adjustment runs in. Everything written
// through a Tx commits or rolls back together.
type Tx interface {
	// LockStock reads both stock tiers of a product for update. The store-level row is
	// created from the product's aggregate stock when it does not exist yet.
	LockStock(ctx context.Context, tenantID string, storeID string, productID string) (domain.StockLevel, error)
	SaveStock(ctx context.Context, level domain.StockLevel) error
	AppendMovement(ctx context.Context, movement domain.InventoryMovement) error
	InsertSale(ctx context.Context, sale domain.Sale) error
}

type MovementFilter struct {
	TenantID  string
	StoreID   string
	ProductID string
	From      time.Time
	To        time.Time
	Limit     int
}

// ProductSummaryFilter selects product summary rows with From <= date <= To. Empty
// StoreID or ProductID match every store or product of the tenant.
type ProductSummaryFilter struct {
	TenantID  string
	StoreID   string
	ProductID string
	From      time.Time
	To        time.Time
}

// HealthChecker is implemented by stores that can report backend reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
