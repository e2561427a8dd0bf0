package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

const maxReportDays = 93

// DailySummaries returns the stored summaries of a store for an inclusive date range.
// Empty bounds default to the last seven days.
func (s *Service) DailySummaries(ctx context.Context, storeID string, fromRaw string, toRaw string) ([]domain.DailySalesSummary, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.ResolveStore(ctx, actor.TenantID, strings.TrimSpace(storeID))
	if err != nil {
		return nil, err
	}
	from, to, err := s.parseRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	summaries, err := s.repo.ListDailySummaries(ctx, actor.TenantID, st.ID, from, to)
	if err != nil {
		return nil, persistence("list daily summaries", err)
	}
	return summaries, nil
}

// ProductSummaryQuery selects product rows by store, by product, or both, over an
// inclusive date range. Date is shorthand for From = To = Date.
type ProductSummaryQuery struct {
	StoreID   string
	ProductID string
	Date      string
	From      string
	To        string
}

// ProductSummaries lists per-product rows ordered by date, store and product. A query
// naming only a product spans every store of the tenant; otherwise the store is
// resolved like the other reports.
func (s *Service) ProductSummaries(ctx context.Context, q ProductSummaryQuery) ([]domain.ProductSalesSummary, error) {
	actor, err := actorTenant(ctx)
	if err != nil {
		return nil, err
	}
	filter := store.ProductSummaryFilter{
		TenantID:  actor.TenantID,
		ProductID: strings.TrimSpace(q.ProductID),
	}
	storeID := strings.TrimSpace(q.StoreID)
	if storeID != "" || filter.ProductID == "" {
		st, err := s.ResolveStore(ctx, actor.TenantID, storeID)
		if err != nil {
			return nil, err
		}
		filter.StoreID = st.ID
	}

	fromRaw, toRaw := strings.TrimSpace(q.From), strings.TrimSpace(q.To)
	if date := strings.TrimSpace(q.Date); date != "" {
		if fromRaw != "" || toRaw != "" {
			return nil, validationf("date cannot be combined with from or to")
		}
		fromRaw, toRaw = date, date
	}
	filter.From, filter.To, err = s.parseRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListProductSummaries(ctx, filter)
	if err != nil {
		return nil, persistence("list product summaries", err)
	}
	return rows, nil
}

// Recompute rebuilds one store day synchronously. It is the repair path for summaries
// whose asynchronous run failed. Admin only.
func (s *Service) Recompute(ctx context.Context, req domain.RecomputeRequest) (domain.DailySalesSummary, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.DailySalesSummary{}, err
	}
	st, err := s.ResolveStore(ctx, actor.TenantID, strings.TrimSpace(req.StoreID))
	if err != nil {
		return domain.DailySalesSummary{}, err
	}
	date := s.aggregator.DayOf(s.now())
	if req.Date != "" {
		date, err = s.aggregator.ParseDay(req.Date)
		if err != nil {
			return domain.DailySalesSummary{}, validationf("invalid date %q", req.Date)
		}
	}

	started := time.Now()
	summary, err := s.aggregator.RecomputeDay(ctx, actor.TenantID, st.ID, date)
	s.metrics.AggregationRun(err, time.Since(started))
	if err != nil {
		return domain.DailySalesSummary{}, persistence("recompute day", err)
	}
	s.logger.WithFields(logrus.Fields{
		"tenant_id": actor.TenantID,
		"store_id":  st.ID,
		"date":      date.Format(time.DateOnly),
		"actor":     actor.Username,
	}).Info("service: day recomputed on request")
	return summary, nil
}

func (s *Service) parseRange(fromRaw string, toRaw string) (time.Time, time.Time, error) {
	to := s.aggregator.DayOf(s.now())
	if toRaw != "" {
		parsed, err := s.aggregator.ParseDay(toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, validationf("invalid to date %q", toRaw)
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -6)
	if fromRaw != "" {
		parsed, err := s.aggregator.ParseDay(fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, validationf("invalid from date %q", fromRaw)
		}
		from = parsed
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, validationf("from date is after to date")
	}
	if to.Sub(from) > maxReportDays*24*time.Hour {
		return time.Time{}, time.Time{}, validationf("range exceeds %d days", maxReportDays)
	}
	return from, to, nil
}
