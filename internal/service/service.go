package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"possync/backend/internal/aggregation"
	"possync/backend/internal/domain"
	"possync/backend/internal/metrics"
	"possync/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Enqueuer accepts recompute jobs without blocking the caller.
type Enqueuer interface {
	Enqueue(job aggregation.Job) bool
}

// EventNotifier delivers realtime events on a best-effort basis.
type EventNotifier interface {
	Notify(event domain.Event)
}

type Options struct {
	Aggregator *aggregation.Aggregator
	Queue      Enqueuer
	Notifier   EventNotifier
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Service struct {
	repo       store.Repository
	aggregator *aggregation.Aggregator
	queue      Enqueuer
	notifier   EventNotifier
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:       repo,
		aggregator: opts.Aggregator,
		queue:      opts.Queue,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if s.aggregator == nil {
		s.aggregator = aggregation.NewAggregator(repo, time.UTC)
	}
	if s.queue == nil {
		s.queue = noopQueue{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ResolveStore returns the requested store when the tenant owns it, otherwise the
// tenant's first store. It never writes.
func (s *Service) ResolveStore(ctx context.Context, tenantID string, requestedStoreID string) (domain.Store, error) {
	if strings.TrimSpace(tenantID) == "" {
		return domain.Store{}, validationf("tenant id is required")
	}

	if requestedStoreID != "" {
		st, err := s.repo.GetStore(ctx, tenantID, requestedStoreID)
		if err == nil {
			return *st, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Store{}, persistence("get store", err)
		}
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"store_id":  requestedStoreID,
		}).Debug("service: requested store not owned by tenant, falling back")
	}

	st, err := s.repo.FirstStore(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Store{}, ErrStoreNotFound
		}
		return domain.Store{}, persistence("first store", err)
	}
	return *st, nil
}

// ValidateCatalog resolves every product id for the tenant. A single unknown id fails the
// whole call with a *CatalogMismatchError.
func (s *Service) ValidateCatalog(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.CatalogEntry, error) {
	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	products, err := s.repo.GetProductsByIDs(ctx, tenantID, unique)
	if err != nil {
		return nil, persistence("load products", err)
	}

	missing := make([]string, 0)
	catalog := make(map[string]domain.CatalogEntry, len(products))
	for _, id := range unique {
		p, ok := products[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		catalog[id] = domain.CatalogEntry{
			ProductID: p.ID,
			Price:     p.Price,
			CostPrice: p.CostPrice,
			Stock:     p.Stock,
			MinStock:  p.MinStock,
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &CatalogMismatchError{Missing: missing}
	}
	return catalog, nil
}

func (s *Service) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, persistence("list products", err)
	}
	return products, nil
}

func (s *Service) ListStores(ctx context.Context, tenantID string) ([]domain.Store, error) {
	stores, err := s.repo.ListStores(ctx, tenantID)
	if err != nil {
		return nil, persistence("list stores", err)
	}
	return stores, nil
}

func actorTenant(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID == "" {
		return domain.Actor{}, validationf("authenticated tenant is required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

type noopQueue struct{}

func (noopQueue) Enqueue(aggregation.Job) bool { return false }

type noopNotifier struct{}

func (noopNotifier) Notify(domain.Event) {}
