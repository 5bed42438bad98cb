package api

import (
	"net/http"

	"github.com/okian/slipsync/internal/domain/types"
)

// EventsHandler handles catalog requests.
type EventsHandler struct {
	catalog Catalog
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(catalog Catalog) *EventsHandler {
	return &EventsHandler{catalog: catalog}
}

// HandleGetEvents handles GET /events. Until the catalog loads it answers
// 503 so clients can tell "not yet" from "no events".
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	if !h.catalog.Loaded() {
		writeKind(w, NewKind("api.get_events", ErrUnavailable))
		return
	}
	events := h.catalog.Snapshot()
	out := make([]types.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, types.NewEvent(ev, h.catalog.FormatStart(ev.Start)))
	}
	writeJSON(w, http.StatusOK, out)
}
