package checkin_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/checkin"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
)

// SSEHandler streams live redemption outcomes to check-in dashboards and
// station monitors.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.RedemptionEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.RedemptionEventEmitter) *SSEHandler {
	return &SSEHandler{
		Logger:       log,
		EventEmitter: emitter,
	}
}

// HandleEventCheckins streams redemption events for a specific event.
func (h *SSEHandler) HandleEventCheckins(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "Event ID is required", http.StatusBadRequest)
		return
	}

	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToEvent(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":\"%s\"}\n\n", eventID)
	w.(http.Flusher).Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to check-in stream for event: %s", eventID))
	h.stream(w, ctx.Done(), eventChan)
}

// HandleStationCheckins streams redemption events for a specific station.
func (h *SSEHandler) HandleStationCheckins(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	if stationID == "" {
		http.Error(w, "Station ID is required", http.StatusBadRequest)
		return
	}

	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToStation(ctx, stationID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"stationID\":\"%s\"}\n\n", stationID)
	w.(http.Flusher).Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to check-in stream for station: %s", stationID))
	h.stream(w, ctx.Done(), eventChan)
}

func (h *SSEHandler) stream(w http.ResponseWriter, done <-chan struct{}, events chan checkin.RedemptionEvent) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize redemption event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", jsonData)
			w.(http.Flusher).Flush()

		case <-done:
			h.Logger.Debug("SSE", "Client disconnected from check-in stream")
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
