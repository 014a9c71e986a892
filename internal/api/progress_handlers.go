package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/events"
)

const heartbeatInterval = 15 * time.Second

// ProgressHandler streams generation progress over Server-Sent Events.
type ProgressHandler struct {
	bus    *events.Bus
	logger *slog.Logger
}

func NewProgressHandler(bus *events.Bus, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{bus: bus, logger: logger}
}

// Stream handles GET /api/newsletters/:id/progress. Buffered history is
// replayed first, then live events until a terminal event or client
// disconnect. Heartbeat comments keep proxies from closing idle streams.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		writeError(w, h.logger, http.StatusBadRequest, "Generation ID required")
		return
	}
	generationID := parts[3]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	// The server write timeout would cut long streams short.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear write deadline for SSE stream", "error", err)
	}

	ch := h.bus.Subscribe(r.Context(), generationID)
	h.logger.Debug("SSE subscriber connected", "generation_id", generationID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-ch:
			if !open {
				h.logger.Debug("SSE stream closed", "generation_id", generationID)
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal progress event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
