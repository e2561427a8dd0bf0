package domain

import "time"

// ErrorKind is the error taxonomy reported back to terminals.
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "ValidationError"
	ErrorKindCatalogMismatch    ErrorKind = "CatalogMismatch"
	ErrorKindStoreNotFound      ErrorKind = "StoreNotFound"
	ErrorKindPersistenceFailure ErrorKind = "PersistenceFailure"
)

const (
	EventSaleCreated  = "sale_created"
	EventStockChanged = "stock_changed"
)

type SaleCreatedEvent struct {
	SaleID     string    `json:"saleId"`
	StoreID    string    `json:"storeId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type StockChange struct {
	ProductID    string `json:"productId"`
	ProductStock int    `json:"productStock"`
	StoreStock   int    `json:"storeStock"`
	LowStock     bool   `json:"lowStock,omitempty"`
}

type StockChangedEvent struct {
	StoreID string        `json:"storeId"`
	Changes []StockChange `json:"changes"`
}

// Event is the envelope pushed to a tenant's subscriber group.
type Event struct {
	Type     string    `json:"type"`
	TenantID string    `json:"tenantId"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload"`
}
