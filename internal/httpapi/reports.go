package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"possync/backend/internal/domain"
	"possync/backend/internal/service"
)

func (a *API) handleDailySummaries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))

	summaries, err := a.service.DailySummaries(r.Context(), storeParam(r), query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	switch format {
	case "csv":
		body, err := dailySummariesToCSV(summaries)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-summaries-%s.csv\"", time.Now().UTC().Format("20060102")))
		_, _ = w.Write(body)
	case "xlsx":
		body, err := dailySummariesToXLSX(summaries)
		if err != nil {
			a.logger.WithError(err).Error("http: xlsx export failed")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-summaries-%s.xlsx\"", time.Now().UTC().Format("20060102")))
		_, _ = w.Write(body)
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("unsupported format %q", format),
			Kind:  domain.ErrorKindValidation,
		})
	}
}

func (a *API) handleProductSummaries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rows, err := a.service.ProductSummaries(r.Context(), service.ProductSummaryQuery{
		StoreID:   storeParam(r),
		ProductID: query.Get("product_id"),
		Date:      query.Get("date"),
		From:      query.Get("from"),
		To:        query.Get("to"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": rows})
}

func (a *API) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req domain.RecomputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidPayload(w, err)
		return
	}

	summary, err := a.service.Recompute(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

var dailySummaryHeader = []string{"date", "store_id", "transactions", "gross_sales", "cost_of_goods_sold", "gross_profit", "computed_at"}

func dailySummariesToCSV(summaries []domain.DailySalesSummary) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(dailySummaryHeader)
	for _, s := range summaries {
		_ = cw.Write([]string{
			s.Date.Format(time.DateOnly),
			s.StoreID,
			strconv.Itoa(s.TransactionCount),
			s.GrossSales.StringFixed(2),
			s.CostOfGoodsSold.StringFixed(2),
			s.GrossProfit.StringFixed(2),
			s.ComputedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func dailySummariesToXLSX(summaries []domain.DailySalesSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Daily Summaries"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for c, v := range dailySummaryHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, s := range summaries {
		row := r + 2
		values := []any{
			s.Date.Format(time.DateOnly),
			s.StoreID,
			s.TransactionCount,
			s.GrossSales.InexactFloat64(),
			s.CostOfGoodsSold.InexactFloat64(),
			s.GrossProfit.InexactFloat64(),
			s.ComputedAt.UTC().Format(time.RFC3339),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 14)
	_ = f.SetColWidth(sheet, "C", "C", 12)
	_ = f.SetColWidth(sheet, "D", "F", 18)
	_ = f.SetColWidth(sheet, "G", "G", 22)

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "G1", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
