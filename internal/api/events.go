package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SectionEvents streams section changes of one summons as server-sent events. The first
// event is a full snapshot so clients never miss changes that happened before subscribing;
// another snapshot follows whenever the event feed had a gap.
func (h *Handler) SectionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "streaming unsupported"})
		return
	}
	summonsID := chi.URLParam(r, "summonsId")

	events, cancel := h.events.Subscribe(summonsID)
	defer cancel()

	sm, err := h.summons.GetSummons(r.Context(), caseFrom(r.Context()).ID, summonsID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", sectionsResponse{SummonsID: sm.ID, Status: sm.Status, Sections: sm.Sections}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Resync {
				sm, err := h.summons.GetSummons(r.Context(), caseFrom(r.Context()).ID, summonsID)
				if err != nil {
					h.logger.Warn("resync section stream", zap.String("summons_id", summonsID), zap.Error(err))
					return
				}
				err = writeEvent(w, "snapshot", sectionsResponse{SummonsID: sm.ID, Status: sm.Status, Sections: sm.Sections})
				if err != nil {
					return
				}
			} else if err := writeEvent(w, "section", ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}
