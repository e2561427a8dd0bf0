package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"possync/backend/internal/service"
)

const eventKeepAlive = 25 * time.Second

// handleEvents streams the caller tenant's realtime events as server-sent events. Events
// published while no stream is open are not replayed.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusNotImplemented, errors.New("event streaming is disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	actor, _ := service.ActorFromContext(r.Context())

	events, cancel, err := a.events.Subscribe(r.Context(), actor.TenantID)
	if err != nil {
		a.logger.WithError(err).WithField("tenant_id", actor.TenantID).Error("http: subscribe failed")
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				a.logger.WithError(err).WithField("type", event.Type).Warn("http: drop unencodable event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
