package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"possync/backend/internal/aggregation"
	"possync/backend/internal/domain"
	"possync/backend/internal/inventory"
	"possync/backend/internal/store"
	"possync/backend/internal/xid"
)

const (
	maxOfflineIDLength = 128
	maxBatchSize       = 500
)

// SubmitSale records one offline sale exactly once per (tenant, offline id). The sale,
// its line items and every stock change commit together or not at all.
func (s *Service) SubmitSale(ctx context.Context, req domain.SubmitSaleRequest) (domain.SubmitSaleResponse, error) {
	started := time.Now()

	resp, err := s.submitSale(ctx, req)
	status := resp.Status
	if err != nil {
		status = domain.SyncStatusRejected
	}
	s.metrics.SaleSynced(status, time.Since(started))
	return resp, err
}

func (s *Service) submitSale(ctx context.Context, req domain.SubmitSaleRequest) (domain.SubmitSaleResponse, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return domain.SubmitSaleResponse{}, err
	}
	if err := normalizeSaleRequest(&req); err != nil {
		return domain.SubmitSaleResponse{}, err
	}
	if req.StoreID == "" {
		req.StoreID = actor.StoreID
	}
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":  actor.TenantID,
		"offline_id": req.OfflineID,
	})

	if existing, err := s.repo.FindSaleByOfflineID(ctx, actor.TenantID, req.OfflineID); err == nil {
		return domain.SubmitSaleResponse{ID: existing.ID, Status: domain.SyncStatusAlreadySynced}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SubmitSaleResponse{}, persistence("find sale", err)
	}

	st, err := s.ResolveStore(ctx, actor.TenantID, req.StoreID)
	if err != nil {
		return domain.SubmitSaleResponse{}, err
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	catalog, err := s.ValidateCatalog(ctx, actor.TenantID, productIDs)
	if err != nil {
		if errors.Is(err, ErrCatalogMismatch) {
			log.WithError(err).Warn("service: sale rejected by catalog")
		}
		return domain.SubmitSaleResponse{}, err
	}

	sale := buildSale(actor, st, req, catalog, s.now())
	deltas := aggregateQuantities(req.Items)

	var results []inventory.Result
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		results = results[:0]
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, d := range deltas {
			res, err := inventory.ApplyStockDelta(ctx, tx, inventory.Delta{
				TenantID:    actor.TenantID,
				StoreID:     st.ID,
				ProductID:   d.productID,
				Quantity:    -d.quantity,
				Reason:      domain.MovementReasonSale,
				ReferenceID: sale.ID,
				Actor:       actor.Username,
				At:          sale.SyncedAt,
			})
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOfflineID) {
			winner, findErr := s.repo.FindSaleByOfflineID(ctx, actor.TenantID, req.OfflineID)
			if findErr != nil {
				return domain.SubmitSaleResponse{}, persistence("re-read duplicate sale", findErr)
			}
			log.WithField("sale_id", winner.ID).Info("service: lost duplicate race, sale already synced")
			return domain.SubmitSaleResponse{ID: winner.ID, Status: domain.SyncStatusAlreadySynced}, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			// A product or store disappeared between validation and the write.
			return domain.SubmitSaleResponse{}, &CatalogMismatchError{Missing: productIDs}
		}
		log.WithError(err).Error("service: sale transaction failed")
		return domain.SubmitSaleResponse{}, persistence("record sale", err)
	}

	for _, res := range results {
		if res.Applied != res.Movement.Requested {
			s.metrics.StockClamped()
			log.WithFields(logrus.Fields{
				"product_id": res.Movement.ProductID,
				"requested":  res.Movement.Requested,
				"applied":    res.Applied,
			}).Warn("service: oversell, stock clamped at zero")
		}
	}

	s.afterCommit(actor.TenantID, sale, results)
	log.WithFields(logrus.Fields{"sale_id": sale.ID, "store_id": st.ID}).Info("service: sale synced")
	return domain.SubmitSaleResponse{ID: sale.ID, Status: domain.SyncStatusSynced}, nil
}

// SyncBatch submits each sale independently. One bad sale never fails the batch; its
// status carries the error kind instead.
func (s *Service) SyncBatch(ctx context.Context, req domain.SyncBatchRequest) (domain.SyncBatchResponse, error) {
	if len(req.Sales) == 0 {
		return domain.SyncBatchResponse{}, validationf("sales are required")
	}
	if len(req.Sales) > maxBatchSize {
		return domain.SyncBatchResponse{}, validationf("batch exceeds %d sales", maxBatchSize)
	}

	resp := domain.SyncBatchResponse{
		EnvelopeID: req.EnvelopeID,
		Results:    make([]domain.SyncItemStatus, 0, len(req.Sales)),
	}
	for _, sale := range req.Sales {
		if sale.StoreID == "" {
			sale.StoreID = req.StoreID
		}
		if sale.TerminalID == "" {
			sale.TerminalID = req.TerminalID
		}

		result, err := s.SubmitSale(ctx, sale)
		status := domain.SyncItemStatus{OfflineID: strings.TrimSpace(sale.OfflineID)}
		if err != nil {
			status.Status = domain.SyncStatusRejected
			status.Kind = KindOf(err)
			status.Reason = err.Error()
			if status.Kind == domain.ErrorKindPersistenceFailure {
				status.Reason = "sale could not be stored, retry later"
			}
			resp.Results = append(resp.Results, status)
			continue
		}
		status.ID = result.ID
		status.Status = result.Status
		resp.Results = append(resp.Results, status)
	}
	return resp, nil
}

// LookupSale lets a terminal confirm whether a sale reached the server.
func (s *Service) LookupSale(ctx context.Context, offlineID string) (domain.SaleLookupResponse, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return domain.SaleLookupResponse{}, err
	}
	offlineID = strings.TrimSpace(offlineID)
	if offlineID == "" {
		return domain.SaleLookupResponse{}, validationf("offline id is required")
	}

	sale, err := s.repo.FindSaleByOfflineID(ctx, actor.TenantID, offlineID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleLookupResponse{Found: false}, nil
		}
		return domain.SaleLookupResponse{}, persistence("find sale", err)
	}
	return domain.SaleLookupResponse{Found: true, Sale: sale}, nil
}

func (s *Service) afterCommit(tenantID string, sale domain.Sale, results []inventory.Result) {
	job := aggregation.Job{
		TenantID: tenantID,
		StoreID:  sale.StoreID,
		Date:     s.aggregator.DayOf(sale.OccurredAt),
	}
	if !s.queue.Enqueue(job) {
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"store_id":  sale.StoreID,
			"date":      job.Date.Format(time.DateOnly),
		}).Debug("service: recompute not queued")
	}

	s.notifier.Notify(domain.Event{
		Type:     domain.EventSaleCreated,
		TenantID: tenantID,
		At:       sale.SyncedAt,
		Payload: domain.SaleCreatedEvent{
			SaleID:     sale.ID,
			StoreID:    sale.StoreID,
			OccurredAt: sale.OccurredAt,
		},
	})
	s.notifyStockChanged(tenantID, sale.StoreID, sale.SyncedAt, results)
}

func (s *Service) notifyStockChanged(tenantID string, storeID string, at time.Time, results []inventory.Result) {
	changes := make([]domain.StockChange, 0, len(results))
	for _, res := range results {
		if res.Applied == 0 {
			continue
		}
		changes = append(changes, domain.StockChange{
			ProductID:    res.Level.ProductID,
			ProductStock: res.Level.ProductStock,
			StoreStock:   res.Level.StoreStock,
			LowStock:     inventory.IsLow(res.Level),
		})
	}
	if len(changes) == 0 {
		return
	}
	s.notifier.Notify(domain.Event{
		Type:     domain.EventStockChanged,
		TenantID: tenantID,
		At:       at,
		Payload:  domain.StockChangedEvent{StoreID: storeID, Changes: changes},
	})
}

func normalizeSaleRequest(req *domain.SubmitSaleRequest) error {
	req.OfflineID = strings.TrimSpace(req.OfflineID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))

	if req.OfflineID == "" {
		return validationf("offline id is required")
	}
	if len(req.OfflineID) > maxOfflineIDLength {
		return validationf("offline id exceeds %d characters", maxOfflineIDLength)
	}
	if len(req.Items) == 0 {
		return validationf("items are required")
	}
	if req.TotalAmount.IsNegative() {
		return validationf("total amount must not be negative")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	for i := range req.Items {
		item := &req.Items[i]
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return validationf("item %d: product id is required", i)
		}
		if item.Quantity < 1 {
			return validationf("item %d: quantity must be positive", i)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return validationf("item %d: price must not be negative", i)
		}
	}
	return nil
}

func buildSale(actor domain.Actor, st domain.Store, req domain.SubmitSaleRequest, catalog map[string]domain.CatalogEntry, now time.Time) domain.Sale {
	lines := make([]domain.SaleLineItem, 0, len(req.Items))
	computed := decimal.Zero
	for _, item := range req.Items {
		entry := catalog[item.ProductID]
		price := entry.Price
		if item.Price != nil {
			price = *item.Price
		}
		lines = append(lines, domain.SaleLineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			UnitCost:  entry.CostPrice,
		})
		computed = computed.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	total := req.TotalAmount
	if total.IsZero() {
		total = computed
	}
	occurredAt := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		occurredAt = now
	}

	return domain.Sale{
		ID:            xid.New("sale"),
		TenantID:      actor.TenantID,
		StoreID:       st.ID,
		TerminalID:    strings.TrimSpace(req.TerminalID),
		OfflineID:     req.OfflineID,
		OccurredAt:    occurredAt,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusCompleted,
		CreatedBy:     actor.Username,
		SyncedAt:      now,
		Items:         lines,
	}
}

type productQuantity struct {
	productID string
	quantity  int
}

// aggregateQuantities folds repeated lines per product and orders by product id, which
// is also the row-lock order inside the sale transaction.
func aggregateQuantities(items []domain.SaleItemInput) []productQuantity {
	agg := make(map[string]int, len(items))
	for _, item := range items {
		agg[item.ProductID] += item.Quantity
	}

	result := make([]productQuantity, 0, len(agg))
	for id, qty := range agg {
		result = append(result, productQuantity{productID: id, quantity: qty})
	}
	slices.SortFunc(result, func(a, b productQuantity) int {
		return strings.Compare(a.productID, b.productID)
	})
	return result
}
