package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	Active    bool            `json:"active"`
}

// CatalogEntry is the price/stock projection handed from catalog validation to the
// ledger writer.
type CatalogEntry struct {
	ProductID string
	Price     decimal.Decimal
	CostPrice decimal.Decimal
	Stock     int
	MinStock  int
}

type SaleLineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// Sale is immutable once recorded.
type Sale struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	StoreID       string          `json:"store_id"`
	TerminalID    string          `json:"terminal_id,omitempty"`
	OfflineID     string          `json:"offline_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	CreatedBy     string          `json:"created_by,omitempty"`
	SyncedAt      time.Time       `json:"synced_at"`
	Items         []SaleLineItem  `json:"items"`
}

type StoreStock struct {
	TenantID  string    `json:"tenant_id"`
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockLevel is both tiers of one product as seen from one store.
type StockLevel struct {
	TenantID     string `json:"tenant_id"`
	StoreID      string `json:"store_id"`
	ProductID    string `json:"product_id"`
	ProductStock int    `json:"product_stock"`
	StoreStock   int    `json:"store_stock"`
	MinStock     int    `json:"min_stock"`
}

type InventoryMovement struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	StoreID     string    `json:"store_id"`
	ProductID   string    `json:"product_id"`
	Type        string    `json:"type"`
	Quantity    int       `json:"quantity"`
	Requested   int       `json:"requested"`
	Reason      string    `json:"reason"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type DailySalesSummary struct {
	TenantID         string          `json:"tenant_id"`
	StoreID          string          `json:"store_id"`
	Date             time.Time       `json:"date"`
	GrossSales       decimal.Decimal `json:"gross_sales"`
	TransactionCount int             `json:"transaction_count"`
	CostOfGoodsSold  decimal.Decimal `json:"cost_of_goods_sold"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	ComputedAt       time.Time       `json:"computed_at"`
}

type ProductSalesSummary struct {
	TenantID     string          `json:"tenant_id"`
	StoreID      string          `json:"store_id"`
	ProductID    string          `json:"product_id"`
	Date         time.Time       `json:"date"`
	UnitsSold    int             `json:"units_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	ComputedAt   time.Time       `json:"computed_at"`
}

type Actor struct {
	Username string
	Role     string
	TenantID string
	StoreID  string
}

type SaleItemInput struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// SubmitSaleRequest is the payload a terminal sends for one offline sale.
type SubmitSaleRequest struct {
	OfflineID     string          `json:"offlineId"`
	StoreID       string          `json:"storeId,omitempty"`
	TerminalID    string          `json:"terminalId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	PaymentMethod string          `json:"paymentMethod"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Items         []SaleItemInput `json:"items"`
}

type SubmitSaleResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type SyncBatchRequest struct {
	EnvelopeID string              `json:"envelopeId,omitempty"`
	StoreID    string              `json:"storeId,omitempty"`
	TerminalID string              `json:"terminalId,omitempty"`
	Sales      []SubmitSaleRequest `json:"sales"`
}

type SyncItemStatus struct {
	OfflineID string    `json:"offlineId"`
	ID        string    `json:"id,omitempty"`
	Status    string    `json:"status"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type SyncBatchResponse struct {
	EnvelopeID string           `json:"envelopeId,omitempty"`
	Results    []SyncItemStatus `json:"results"`
}

type SaleLookupResponse struct {
	Found bool  `json:"found"`
	Sale  *Sale `json:"sale,omitempty"`
}

type StockAdjustmentRequest struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Note      string `json:"note"`
}

type StockAdjustmentResponse struct {
	Level    StockLevel        `json:"level"`
	Movement InventoryMovement `json:"movement"`
}

type RecomputeRequest struct {
	StoreID string `json:"store_id"`
	Date    string `json:"date"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	TenantID  string
	StoreID   string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusCompleted = "COMPLETED"
)

const (
	SyncStatusSynced        = "SYNCED"
	SyncStatusAlreadySynced = "ALREADY_SYNCED"
	SyncStatusRejected      = "REJECTED"
)

const (
	MovementTypeIn  = "IN"
	MovementTypeOut = "OUT"
)

const (
	MovementReasonSale             = "SALE"
	MovementReasonManualAdjustment = "MANUAL_ADJUSTMENT"
)

const (
	RoleAdmin    = "admin"
	RoleCashier  = "cashier"
	RoleTerminal = "terminal"
)
