package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"possync/backend/internal/domain"
	"possync/backend/internal/inventory"
	"possync/backend/internal/store"
)

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

// AdjustStock applies a manual correction through the same clamped stock path a sale
// uses. Admin only.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.StockAdjustmentResponse{}, validationf("product id is required")
	}
	if req.Delta == 0 {
		return domain.StockAdjustmentResponse{}, validationf("delta must not be zero")
	}

	st, err := s.ResolveStore(ctx, actor.TenantID, strings.TrimSpace(req.StoreID))
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	if _, err := s.ValidateCatalog(ctx, actor.TenantID, []string{req.ProductID}); err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	now := s.now()
	var result inventory.Result
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		res, err := inventory.ApplyStockDelta(ctx, tx, inventory.Delta{
			TenantID:    actor.TenantID,
			StoreID:     st.ID,
			ProductID:   req.ProductID,
			Quantity:    req.Delta,
			Reason:      domain.MovementReasonManualAdjustment,
			ReferenceID: strings.TrimSpace(req.Note),
			Actor:       actor.Username,
			At:          now,
		})
		result = res
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StockAdjustmentResponse{}, &CatalogMismatchError{Missing: []string{req.ProductID}}
		}
		return domain.StockAdjustmentResponse{}, persistence("adjust stock", err)
	}
	if result.Applied != req.Delta {
		s.metrics.StockClamped()
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  actor.TenantID,
		"store_id":   st.ID,
		"product_id": req.ProductID,
		"requested":  req.Delta,
		"applied":    result.Applied,
		"actor":      actor.Username,
	}).Info("service: stock adjusted")
	s.notifyStockChanged(actor.TenantID, st.ID, now, []inventory.Result{result})

	return domain.StockAdjustmentResponse{Level: result.Level, Movement: result.Movement}, nil
}

func (s *Service) ListStock(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.ResolveStore(ctx, actor.TenantID, strings.TrimSpace(storeID))
	if err != nil {
		return nil, err
	}
	levels, err := s.repo.ListStoreStock(ctx, actor.TenantID, st.ID)
	if err != nil {
		return nil, persistence("list stock", err)
	}
	return levels, nil
}

type MovementQuery struct {
	StoreID   string
	ProductID string
	From      string
	To        string
	Limit     int
}

func (s *Service) ListMovements(ctx context.Context, q MovementQuery) ([]domain.InventoryMovement, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.ResolveStore(ctx, actor.TenantID, strings.TrimSpace(q.StoreID))
	if err != nil {
		return nil, err
	}

	filter := store.MovementFilter{
		TenantID:  actor.TenantID,
		StoreID:   st.ID,
		ProductID: strings.TrimSpace(q.ProductID),
		Limit:     q.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultMovementLimit
	}
	if filter.Limit > maxMovementLimit {
		filter.Limit = maxMovementLimit
	}
	if q.From != "" {
		from, err := s.aggregator.ParseDay(q.From)
		if err != nil {
			return nil, validationf("invalid from date %q", q.From)
		}
		filter.From = s.aggregator.DayStart(from)
	}
	if q.To != "" {
		to, err := s.aggregator.ParseDay(q.To)
		if err != nil {
			return nil, validationf("invalid to date %q", q.To)
		}
		filter.To = s.aggregator.DayStart(to).Add(24 * time.Hour)
	}

	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, persistence("list movements", err)
	}
	return movements, nil
}
