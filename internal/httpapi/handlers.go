package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"possync/backend/internal/domain"
	"possync/backend/internal/service"
)

func (a *API) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidPayload(w, err)
		return
	}

	resp, err := a.service.SubmitSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.Status == domain.SyncStatusAlreadySynced {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidPayload(w, err)
		return
	}

	resp, err := a.service.SyncBatch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLookupSale(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupSale(r.Context(), chi.URLParam(r, "offlineID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !resp.Found {
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	products, err := a.service.ListProducts(r.Context(), actor.TenantID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStores(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	stores, err := a.service.ListStores(r.Context(), actor.TenantID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	levels, err := a.service.ListStock(r.Context(), storeParam(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": levels})
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidPayload(w, err)
		return
	}

	resp, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	movements, err := a.service.ListMovements(r.Context(), service.MovementQuery{
		StoreID:   storeParam(r),
		ProductID: query.Get("product_id"),
		From:      query.Get("from"),
		To:        query.Get("to"),
		Limit:     parsePositiveLimit(query.Get("limit"), 100, 1000),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

// storeParam falls back to the store bound to the caller's token.
func storeParam(r *http.Request) string {
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		return storeID
	}
	actor, _ := service.ActorFromContext(r.Context())
	return actor.StoreID
}

func writeInvalidPayload(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: "invalid payload: " + err.Error(),
		Kind:  domain.ErrorKindValidation,
	})
}
