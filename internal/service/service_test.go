package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/backend/internal/aggregation"
	"possync/backend/internal/domain"
	"possync/backend/internal/fanout"
	"possync/backend/internal/logging"
	"possync/backend/internal/store"
	"possync/backend/internal/store/memory"
)

var cashierCtx = WithActor(context.Background(), domain.Actor{
	Username: "cashier",
	Role:     domain.RoleCashier,
	TenantID: "tenant-demo",
	StoreID:  "store-main",
})

var adminCtx = WithActor(context.Background(), domain.Actor{
	Username: "admin",
	Role:     domain.RoleAdmin,
	TenantID: "tenant-demo",
})

type jobRecorder struct {
	mu   sync.Mutex
	jobs []aggregation.Job
}

func (r *jobRecorder) Enqueue(job aggregation.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return true
}

func (r *jobRecorder) Jobs() []aggregation.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]aggregation.Job(nil), r.jobs...)
}

// steppingClock advances one second per reading so movement order is deterministic.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type testRig struct {
	svc      *Service
	repo     *memory.Store
	queue    *jobRecorder
	events   *fanout.Recorder
	notifier *fanout.Notifier
}

func newTestRig(t *testing.T, repo store.Repository) testRig {
	t.Helper()

	mem := memory.NewSeeded()
	if repo == nil {
		repo = mem
	} else if wrapped, ok := repo.(interface{ Unwrap() *memory.Store }); ok {
		mem = wrapped.Unwrap()
	}

	logger := logging.Discard()
	recorder := &fanout.Recorder{}
	notifier := fanout.NewNotifier(recorder, time.Second, logger, nil)
	queue := &jobRecorder{}
	svc := New(repo, Options{
		Aggregator: aggregation.NewAggregator(repo, time.UTC),
		Queue:      queue,
		Notifier:   notifier,
		Logger:     logger,
		Now:        steppingClock(),
	})
	return testRig{svc: svc, repo: mem, queue: queue, events: recorder, notifier: notifier}
}

func sale(offlineID string, items ...domain.SaleItemInput) domain.SubmitSaleRequest {
	return domain.SubmitSaleRequest{
		OfflineID:     offlineID,
		StoreID:       "store-main",
		OccurredAt:    time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC),
		PaymentMethod: "cash",
		Items:         items,
	}
}

func item(productID string, qty int) domain.SaleItemInput {
	return domain.SaleItemInput{ProductID: productID, Quantity: qty}
}

func stockOf(t *testing.T, repo *memory.Store, storeID string, productID string) domain.StockLevel {
	t.Helper()
	levels, err := repo.ListStoreStock(context.Background(), "tenant-demo", storeID)
	require.NoError(t, err)
	for _, level := range levels {
		if level.ProductID == productID {
			return level
		}
	}
	t.Fatalf("no stock level for %s/%s", storeID, productID)
	return domain.StockLevel{}
}

func TestSubmitSale_OversellClampsAtZero(t *testing.T) {
	rig := newTestRig(t, nil)

	first, err := rig.svc.SubmitSale(cashierCtx, sale("A1", item("prod-roti", 3)))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSynced, first.Status)
	assert.Equal(t, 7, stockOf(t, rig.repo, "store-main", "prod-roti").StoreStock)

	again, err := rig.svc.SubmitSale(cashierCtx, sale("A1", item("prod-roti", 3)))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusAlreadySynced, again.Status)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 7, stockOf(t, rig.repo, "store-main", "prod-roti").StoreStock)

	oversell, err := rig.svc.SubmitSale(cashierCtx, sale("A2", item("prod-roti", 20)))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSynced, oversell.Status)

	level := stockOf(t, rig.repo, "store-main", "prod-roti")
	assert.Equal(t, 0, level.StoreStock)
	assert.Equal(t, 0, level.ProductStock)

	movements, err := rig.repo.ListMovements(context.Background(), store.MovementFilter{
		TenantID:  "tenant-demo",
		StoreID:   "store-main",
		ProductID: "prod-roti",
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, -7, movements[0].Quantity)
	assert.Equal(t, -20, movements[0].Requested)
	assert.Equal(t, oversell.ID, movements[0].ReferenceID)
	assert.Equal(t, -3, movements[1].Quantity)
	assert.Equal(t, domain.MovementReasonSale, movements[1].Reason)
	assert.Equal(t, domain.MovementTypeOut, movements[1].Type)
}

func TestSubmitSale_IdempotentAcrossManySubmissions(t *testing.T) {
	rig := newTestRig(t, nil)
	req := sale("IDEM-1", item("prod-mie", 2), item("prod-kopi", 1), item("prod-mie", 1))

	var saleID string
	for i := 0; i < 5; i++ {
		resp, err := rig.svc.SubmitSale(cashierCtx, req)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, domain.SyncStatusSynced, resp.Status)
			saleID = resp.ID
			continue
		}
		assert.Equal(t, domain.SyncStatusAlreadySynced, resp.Status)
		assert.Equal(t, saleID, resp.ID)
	}

	assert.Equal(t, 117, stockOf(t, rig.repo, "store-main", "prod-mie").StoreStock)
	assert.Equal(t, 199, stockOf(t, rig.repo, "store-main", "prod-kopi").StoreStock)

	movements, err := rig.repo.ListMovements(context.Background(), store.MovementFilter{TenantID: "tenant-demo", StoreID: "store-main"})
	require.NoError(t, err)
	assert.Len(t, movements, 2, "repeated lines fold into one movement per product")

	stored, err := rig.repo.FindSaleByID(context.Background(), "tenant-demo", saleID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 3)
	assert.Equal(t, "13100", stored.TotalAmount.String())
	assert.Len(t, rig.queue.Jobs(), 1)
}

// racingRepo hides existing sales from the first n lookups and holds them until all n
// have arrived, so every submitter reaches the insert.
type racingRepo struct {
	*memory.Store
	mu      sync.Mutex
	blind   int
	arrived sync.WaitGroup
}

func newRacingRepo(n int) *racingRepo {
	r := &racingRepo{Store: memory.NewSeeded(), blind: n}
	r.arrived.Add(n)
	return r
}

func (r *racingRepo) Unwrap() *memory.Store { return r.Store }

func (r *racingRepo) FindSaleByOfflineID(ctx context.Context, tenantID string, offlineID string) (*domain.Sale, error) {
	r.mu.Lock()
	if r.blind > 0 {
		r.blind--
		r.mu.Unlock()
		r.arrived.Done()
		r.arrived.Wait()
		return nil, store.ErrNotFound
	}
	r.mu.Unlock()
	return r.Store.FindSaleByOfflineID(ctx, tenantID, offlineID)
}

func TestSubmitSale_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	const submitters = 8
	rig := newTestRig(t, newRacingRepo(submitters))

	results := make([]domain.SubmitSaleResponse, submitters)
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rig.svc.SubmitSale(cashierCtx, sale("RACE-1", item("prod-telur", 4)))
		}(i)
	}
	wg.Wait()

	synced := 0
	ids := make(map[string]struct{})
	for i := range results {
		require.NoError(t, errs[i])
		ids[results[i].ID] = struct{}{}
		if results[i].Status == domain.SyncStatusSynced {
			synced++
			continue
		}
		assert.Equal(t, domain.SyncStatusAlreadySynced, results[i].Status)
	}
	assert.Equal(t, 1, synced)
	assert.Len(t, ids, 1, "every submitter sees the winning sale id")
	assert.Equal(t, 36, stockOf(t, rig.repo, "store-main", "prod-telur").StoreStock)

	rig.notifier.Wait()
	assert.Len(t, rig.events.OfType(domain.EventSaleCreated), 1)
}

func TestSubmitSale_CatalogMismatchWritesNothing(t *testing.T) {
	rig := newTestRig(t, nil)

	_, err := rig.svc.SubmitSale(cashierCtx, sale("CM-1", item("prod-mie", 1), item("prod-teh-other", 2), item("prod-susu-lama", 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogMismatch)
	assert.Equal(t, domain.ErrorKindCatalogMismatch, KindOf(err))

	var mismatch *CatalogMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{"prod-susu-lama", "prod-teh-other"}, mismatch.Missing)

	_, err = rig.repo.FindSaleByOfflineID(context.Background(), "tenant-demo", "CM-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	movements, err := rig.repo.ListMovements(context.Background(), store.MovementFilter{TenantID: "tenant-demo", StoreID: "store-main"})
	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.Equal(t, 120, stockOf(t, rig.repo, "store-main", "prod-mie").StoreStock)

	rig.notifier.Wait()
	assert.Empty(t, rig.events.Events())
	assert.Empty(t, rig.queue.Jobs())
}

func TestSubmitSale_ForeignStoreFallsBackToFirstStore(t *testing.T) {
	rig := newTestRig(t, nil)
	req := sale("FB-1", item("prod-kopi", 1))
	req.StoreID = "store-other"

	resp, err := rig.svc.SubmitSale(cashierCtx, req)
	require.NoError(t, err)

	stored, err := rig.repo.FindSaleByID(context.Background(), "tenant-demo", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "store-main", stored.StoreID)
}

func TestSubmitSale_StoreNotFoundForTenantWithoutStores(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := WithActor(context.Background(), domain.Actor{Username: "x", Role: domain.RoleTerminal, TenantID: "tenant-empty"})

	_, err := rig.svc.SubmitSale(ctx, sale("NS-1", item("prod-mie", 1)))
	assert.ErrorIs(t, err, ErrStoreNotFound)
	assert.Equal(t, domain.ErrorKindStoreNotFound, KindOf(err))
}

func TestSubmitSale_ValidationErrors(t *testing.T) {
	rig := newTestRig(t, nil)
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name string
		ctx  context.Context
		req  domain.SubmitSaleRequest
	}{
		{name: "no actor", ctx: context.Background(), req: sale("V-1", item("prod-mie", 1))},
		{name: "blank offline id", ctx: cashierCtx, req: sale("   ", item("prod-mie", 1))},
		{name: "offline id too long", ctx: cashierCtx, req: sale(fmt.Sprintf("%0129d", 1), item("prod-mie", 1))},
		{name: "no items", ctx: cashierCtx, req: sale("V-2")},
		{name: "zero quantity", ctx: cashierCtx, req: sale("V-3", item("prod-mie", 0))},
		{name: "blank product", ctx: cashierCtx, req: sale("V-4", item(" ", 1))},
		{name: "negative price", ctx: cashierCtx, req: sale("V-5", domain.SaleItemInput{ProductID: "prod-mie", Quantity: 1, Price: &negative})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rig.svc.SubmitSale(tt.ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, domain.ErrorKindValidation, KindOf(err))
		})
	}
}

func TestSubmitSale_UsesTerminalPriceAndCatalogCost(t *testing.T) {
	rig := newTestRig(t, nil)
	price := decimal.RequireFromString("3000")
	req := sale("PR-1", domain.SaleItemInput{ProductID: "prod-mie", Quantity: 2, Price: &price})
	req.TotalAmount = decimal.RequireFromString("6000")

	resp, err := rig.svc.SubmitSale(cashierCtx, req)
	require.NoError(t, err)

	stored, err := rig.repo.FindSaleByID(context.Background(), "tenant-demo", resp.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(price))
	assert.True(t, stored.Items[0].UnitCost.Equal(decimal.RequireFromString("2730")))
	assert.Equal(t, "cash", stored.PaymentMethod)
	assert.Equal(t, "cashier", stored.CreatedBy)
}

func TestSubmitSale_EmitsEventsAndEnqueuesDay(t *testing.T) {
	rig := newTestRig(t, nil)

	_, err := rig.svc.SubmitSale(cashierCtx, sale("EV-1", item("prod-roti", 6)))
	require.NoError(t, err)
	rig.notifier.Wait()

	created := rig.events.OfType(domain.EventSaleCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "tenant-demo", created[0].TenantID)

	changed := rig.events.OfType(domain.EventStockChanged)
	require.Len(t, changed, 1)
	payload := changed[0].Payload.(domain.StockChangedEvent)
	require.Len(t, payload.Changes, 1)
	assert.Equal(t, 4, payload.Changes[0].StoreStock)
	assert.True(t, payload.Changes[0].LowStock)

	jobs := rig.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, aggregation.Job{
		TenantID: "tenant-demo",
		StoreID:  "store-main",
		Date:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}, jobs[0])
}

func TestSubmitSale_ZeroAppliedChangeIsNotBroadcast(t *testing.T) {
	rig := newTestRig(t, nil)

	_, err := rig.svc.SubmitSale(cashierCtx, sale("Z-1", item("prod-roti", 10)))
	require.NoError(t, err)
	_, err = rig.svc.SubmitSale(cashierCtx, sale("Z-2", item("prod-roti", 1)))
	require.NoError(t, err)
	rig.notifier.Wait()

	assert.Len(t, rig.events.OfType(domain.EventSaleCreated), 2)
	assert.Len(t, rig.events.OfType(domain.EventStockChanged), 1)
}

type failingTxRepo struct {
	*memory.Store
}

func (r failingTxRepo) Unwrap() *memory.Store { return r.Store }

func (r failingTxRepo) RunInTx(_ context.Context, _ func(tx store.Tx) error) error {
	return errors.New("connection reset by peer")
}

func TestSyncBatch_IsolatesFailures(t *testing.T) {
	rig := newTestRig(t, nil)

	resp, err := rig.svc.SyncBatch(cashierCtx, domain.SyncBatchRequest{
		EnvelopeID: "env-7",
		StoreID:    "store-branch",
		TerminalID: "T9",
		Sales: []domain.SubmitSaleRequest{
			{OfflineID: "BT-1", Items: []domain.SaleItemInput{item("prod-mie", 1)}},
			{OfflineID: "", Items: []domain.SaleItemInput{item("prod-mie", 1)}},
			{OfflineID: "BT-2", Items: []domain.SaleItemInput{item("prod-ghost", 1)}},
			{OfflineID: "BT-1", Items: []domain.SaleItemInput{item("prod-mie", 1)}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "env-7", resp.EnvelopeID)
	require.Len(t, resp.Results, 4)

	assert.Equal(t, domain.SyncStatusSynced, resp.Results[0].Status)
	assert.Equal(t, domain.ErrorKindValidation, resp.Results[1].Kind)
	assert.Equal(t, domain.ErrorKindCatalogMismatch, resp.Results[2].Kind)
	assert.Equal(t, domain.SyncStatusAlreadySynced, resp.Results[3].Status)

	stored, err := rig.repo.FindSaleByOfflineID(context.Background(), "tenant-demo", "BT-1")
	require.NoError(t, err)
	assert.Equal(t, "store-branch", stored.StoreID)
	assert.Equal(t, "T9", stored.TerminalID)
}

func TestSyncBatch_PersistenceFailureHidesCause(t *testing.T) {
	rig := newTestRig(t, failingTxRepo{Store: memory.NewSeeded()})

	resp, err := rig.svc.SyncBatch(cashierCtx, domain.SyncBatchRequest{
		Sales: []domain.SubmitSaleRequest{sale("PF-1", item("prod-mie", 1))},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, domain.SyncStatusRejected, resp.Results[0].Status)
	assert.Equal(t, domain.ErrorKindPersistenceFailure, resp.Results[0].Kind)
	assert.NotContains(t, resp.Results[0].Reason, "connection reset")
}

func TestSyncBatch_RejectsOversizedEnvelope(t *testing.T) {
	rig := newTestRig(t, nil)
	sales := make([]domain.SubmitSaleRequest, maxBatchSize+1)

	_, err := rig.svc.SyncBatch(cashierCtx, domain.SyncBatchRequest{Sales: sales})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = rig.svc.SyncBatch(cashierCtx, domain.SyncBatchRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLookupSale(t *testing.T) {
	rig := newTestRig(t, nil)

	resp, err := rig.svc.LookupSale(cashierCtx, "LK-1")
	require.NoError(t, err)
	assert.False(t, resp.Found)

	synced, err := rig.svc.SubmitSale(cashierCtx, sale("LK-1", item("prod-kopi", 2)))
	require.NoError(t, err)

	resp, err = rig.svc.LookupSale(cashierCtx, " LK-1 ")
	require.NoError(t, err)
	require.True(t, resp.Found)
	assert.Equal(t, synced.ID, resp.Sale.ID)
}

func TestAdjustStock(t *testing.T) {
	rig := newTestRig(t, nil)

	_, err := rig.svc.AdjustStock(cashierCtx, domain.StockAdjustmentRequest{ProductID: "prod-mie", Delta: 5})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = rig.svc.AdjustStock(adminCtx, domain.StockAdjustmentRequest{ProductID: "prod-mie", Delta: 0})
	assert.ErrorIs(t, err, ErrValidation)

	resp, err := rig.svc.AdjustStock(adminCtx, domain.StockAdjustmentRequest{StoreID: "store-branch", ProductID: "prod-mie", Delta: 30, Note: "restock PO-17"})
	require.NoError(t, err)
	assert.Equal(t, 150, resp.Level.StoreStock)
	assert.Equal(t, 150, resp.Level.ProductStock)
	assert.Equal(t, domain.MovementTypeIn, resp.Movement.Type)
	assert.Equal(t, "restock PO-17", resp.Movement.ReferenceID)
	assert.Equal(t, "admin", resp.Movement.Actor)

	_, err = rig.svc.AdjustStock(adminCtx, domain.StockAdjustmentRequest{ProductID: "prod-teh-other", Delta: 1})
	assert.ErrorIs(t, err, ErrCatalogMismatch)

	rig.notifier.Wait()
	assert.Len(t, rig.events.OfType(domain.EventStockChanged), 1)
}

func TestListMovements_FiltersAndValidatesDates(t *testing.T) {
	rig := newTestRig(t, nil)
	_, err := rig.svc.SubmitSale(cashierCtx, sale("LM-1", item("prod-mie", 1), item("prod-kopi", 1)))
	require.NoError(t, err)

	all, err := rig.svc.ListMovements(cashierCtx, MovementQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyKopi, err := rig.svc.ListMovements(cashierCtx, MovementQuery{ProductID: "prod-kopi", From: "2025-05-01", To: "2025-05-01"})
	require.NoError(t, err)
	require.Len(t, onlyKopi, 1)
	assert.Equal(t, "prod-kopi", onlyKopi[0].ProductID)

	before, err := rig.svc.ListMovements(cashierCtx, MovementQuery{To: "2025-04-30"})
	require.NoError(t, err)
	assert.Empty(t, before)

	_, err = rig.svc.ListMovements(cashierCtx, MovementQuery{From: "01/05/2025"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecomputeAndReports(t *testing.T) {
	rig := newTestRig(t, nil)
	_, err := rig.svc.SubmitSale(cashierCtx, sale("RP-1", item("prod-mie", 2)))
	require.NoError(t, err)
	_, err = rig.svc.SubmitSale(cashierCtx, sale("RP-2", item("prod-telur", 1), item("prod-mie", 1)))
	require.NoError(t, err)

	_, err = rig.svc.Recompute(cashierCtx, domain.RecomputeRequest{Date: "2025-05-01"})
	assert.ErrorIs(t, err, ErrForbidden)

	summary, err := rig.svc.Recompute(adminCtx, domain.RecomputeRequest{StoreID: "store-main", Date: "2025-05-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TransactionCount)
	assert.Equal(t, "37000", summary.GrossSales.String())
	assert.Equal(t, "31240", summary.CostOfGoodsSold.String())
	assert.Equal(t, "5760", summary.GrossProfit.String())

	daily, err := rig.svc.DailySummaries(adminCtx, "store-main", "2025-04-28", "2025-05-01")
	require.NoError(t, err)
	require.Len(t, daily, 1)

	rows, err := rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{StoreID: "store-main", Date: "2025-05-01"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "prod-mie", rows[0].ProductID)
	assert.Equal(t, 3, rows[0].UnitsSold)

	_, err = rig.svc.DailySummaries(adminCtx, "store-main", "2025-05-02", "2025-05-01")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = rig.svc.DailySummaries(adminCtx, "store-main", "2024-01-01", "2025-05-01")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProductSummaries_RangeByStoreOrProduct(t *testing.T) {
	rig := newTestRig(t, nil)
	dayOne := sale("PR-1", item("prod-mie", 2))
	dayTwo := sale("PR-2", item("prod-mie", 1), item("prod-kopi", 1))
	dayTwo.OccurredAt = dayTwo.OccurredAt.AddDate(0, 0, 1)
	branch := sale("PR-3", item("prod-mie", 4))
	branch.StoreID = "store-branch"
	branch.OccurredAt = dayTwo.OccurredAt
	for _, req := range []domain.SubmitSaleRequest{dayOne, dayTwo, branch} {
		_, err := rig.svc.SubmitSale(cashierCtx, req)
		require.NoError(t, err)
	}
	for _, req := range []domain.RecomputeRequest{
		{StoreID: "store-main", Date: "2025-05-01"},
		{StoreID: "store-main", Date: "2025-05-02"},
		{StoreID: "store-branch", Date: "2025-05-02"},
	} {
		_, err := rig.svc.Recompute(adminCtx, req)
		require.NoError(t, err)
	}

	mie, err := rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{ProductID: "prod-mie", From: "2025-05-01", To: "2025-05-02"})
	require.NoError(t, err)
	require.Len(t, mie, 3, "a product-only query spans every store")
	assert.Equal(t, "2025-05-01", mie[0].Date.Format(time.DateOnly))
	assert.Equal(t, 2, mie[0].UnitsSold)
	assert.Equal(t, "store-branch", mie[1].StoreID)
	assert.Equal(t, 4, mie[1].UnitsSold)
	assert.Equal(t, "store-main", mie[2].StoreID)
	assert.Equal(t, 1, mie[2].UnitsSold)

	mainMie, err := rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{StoreID: "store-main", ProductID: "prod-mie", From: "2025-05-01", To: "2025-05-02"})
	require.NoError(t, err)
	require.Len(t, mainMie, 2)
	assert.Equal(t, "7000", mainMie[0].TotalRevenue.String())
	assert.Equal(t, "3500", mainMie[1].TotalRevenue.String())

	mainAll, err := rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{StoreID: "store-main", From: "2025-05-01", To: "2025-05-02"})
	require.NoError(t, err)
	require.Len(t, mainAll, 3)
	assert.Equal(t, "prod-kopi", mainAll[1].ProductID)

	_, err = rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{ProductID: "prod-mie", From: "2025-05-02", To: "2025-05-01"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{ProductID: "prod-mie", From: "2024-01-01", To: "2025-05-01"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = rig.svc.ProductSummaries(adminCtx, ProductSummaryQuery{Date: "2025-05-01", From: "2025-05-01"})
	assert.ErrorIs(t, err, ErrValidation)
}
