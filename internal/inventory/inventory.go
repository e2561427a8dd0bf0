// Package inventory keeps the product-level and store-level stock counters in step with
// the movement ledger.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
	"possync/backend/internal/xid"
)

var ErrInvalidDelta = errors.New("invalid stock delta")

// Delta is one signed stock change. Negative quantities remove stock.
type Delta struct {
	TenantID    string
	StoreID     string
	ProductID   string
	Quantity    int
	Reason      string
	ReferenceID string
	Actor       string
	At          time.Time
}

type Result struct {
	Level    domain.StockLevel
	Movement domain.InventoryMovement
	// Applied differs from the requested quantity when the store counter hit zero.
	Applied int
}

// Clamp returns current+delta floored at zero.
func Clamp(current int, delta int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	return next
}

// ApplyStockDelta moves both stock tiers by d.Quantity inside tx and records the movement.
// Oversell is accepted: the store counter stops at zero and the movement carries the delta
// that was actually applied. The product aggregate moves by that same applied delta.
func ApplyStockDelta(ctx context.Context, tx store.Tx, d Delta) (Result, error) {
	if d.TenantID == "" || d.StoreID == "" || d.ProductID == "" || d.Reason == "" {
		return Result{}, ErrInvalidDelta
	}

	level, err := tx.LockStock(ctx, d.TenantID, d.StoreID, d.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("lock stock %s/%s: %w", d.StoreID, d.ProductID, err)
	}

	nextStore := Clamp(level.StoreStock, d.Quantity)
	applied := nextStore - level.StoreStock
	level.StoreStock = nextStore
	level.ProductStock = Clamp(level.ProductStock, applied)

	if err := tx.SaveStock(ctx, level); err != nil {
		return Result{}, fmt.Errorf("save stock %s/%s: %w", d.StoreID, d.ProductID, err)
	}

	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	movement := domain.InventoryMovement{
		ID:          xid.New("mov"),
		TenantID:    d.TenantID,
		StoreID:     d.StoreID,
		ProductID:   d.ProductID,
		Type:        movementType(d.Quantity),
		Quantity:    applied,
		Requested:   d.Quantity,
		Reason:      d.Reason,
		ReferenceID: d.ReferenceID,
		Actor:       d.Actor,
		CreatedAt:   at,
	}
	if err := tx.AppendMovement(ctx, movement); err != nil {
		return Result{}, fmt.Errorf("append movement %s/%s: %w", d.StoreID, d.ProductID, err)
	}

	return Result{Level: level, Movement: movement, Applied: applied}, nil
}

// IsLow reports whether the store counter is at or under the product's threshold.
func IsLow(level domain.StockLevel) bool {
	return level.MinStock > 0 && level.StoreStock <= level.MinStock
}

func movementType(requested int) string {
	if requested < 0 {
		return domain.MovementTypeOut
	}
	return domain.MovementTypeIn
}
