// Package aggregation derives the daily and per-product sales summaries from the sale
// log. Summaries are always rebuilt from a full rescan of the day, so re-running a day
// converges to the same rows.
package aggregation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

type Aggregator struct {
	repo store.Repository
	loc  *time.Location
	now  func() time.Time
}

// NewAggregator computes calendar days in loc. A nil loc means UTC.
func NewAggregator(repo store.Repository, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		repo: repo,
		loc:  loc,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// DayOf returns the calendar date of t in the report timezone, as a UTC-midnight label.
func (a *Aggregator) DayOf(t time.Time) time.Time {
	local := t.In(a.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DayStart returns the instant the labelled day begins in the report timezone.
func (a *Aggregator) DayStart(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.loc)
}

func (a *Aggregator) ParseDay(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return parsed, nil
}

// RecomputeDay rescans every completed sale of (store, day) and replaces the day's
// summaries.
func (a *Aggregator) RecomputeDay(ctx context.Context, tenantID string, storeID string, day time.Time) (domain.DailySalesSummary, error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	from := a.DayStart(day)
	to := from.AddDate(0, 0, 1)

	sales, err := a.repo.ListCompletedSales(ctx, tenantID, storeID, from, to)
	if err != nil {
		return domain.DailySalesSummary{}, fmt.Errorf("list sales %s %s: %w", storeID, day.Format(time.DateOnly), err)
	}

	computedAt := a.now()
	daily, products := Fold(sales)
	daily.TenantID = tenantID
	daily.StoreID = storeID
	daily.Date = day
	daily.ComputedAt = computedAt
	for i := range products {
		products[i].TenantID = tenantID
		products[i].StoreID = storeID
		products[i].Date = day
		products[i].ComputedAt = computedAt
	}

	if err := a.repo.ReplaceDaySummaries(ctx, daily, products); err != nil {
		return domain.DailySalesSummary{}, fmt.Errorf("replace summaries %s %s: %w", storeID, day.Format(time.DateOnly), err)
	}
	return daily, nil
}

// Fold totals a set of sales. Revenue and cost come from the line snapshots only. The day
// totals are summed from the rounded product rows, so product revenues always add up to
// the day's gross sales.
func Fold(sales []domain.Sale) (domain.DailySalesSummary, []domain.ProductSalesSummary) {
	daily := domain.DailySalesSummary{
		GrossSales:      decimal.Zero,
		CostOfGoodsSold: decimal.Zero,
	}
	byProduct := make(map[string]*domain.ProductSalesSummary)

	for _, sale := range sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		daily.TransactionCount++
		for _, line := range sale.Items {
			qty := decimal.NewFromInt(int64(line.Quantity))
			revenue := line.UnitPrice.Mul(qty)
			cost := line.UnitCost.Mul(qty)

			row, ok := byProduct[line.ProductID]
			if !ok {
				row = &domain.ProductSalesSummary{
					ProductID:    line.ProductID,
					TotalRevenue: decimal.Zero,
					TotalCost:    decimal.Zero,
				}
				byProduct[line.ProductID] = row
			}
			row.UnitsSold += line.Quantity
			row.TotalRevenue = row.TotalRevenue.Add(revenue)
			row.TotalCost = row.TotalCost.Add(cost)
		}
	}
	products := make([]domain.ProductSalesSummary, 0, len(byProduct))
	for _, row := range byProduct {
		row.TotalRevenue = row.TotalRevenue.Round(2)
		row.TotalCost = row.TotalCost.Round(2)
		daily.GrossSales = daily.GrossSales.Add(row.TotalRevenue)
		daily.CostOfGoodsSold = daily.CostOfGoodsSold.Add(row.TotalCost)
		products = append(products, *row)
	}
	daily.GrossProfit = daily.GrossSales.Sub(daily.CostOfGoodsSold)
	slices.SortFunc(products, func(a, b domain.ProductSalesSummary) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return daily, products
}
