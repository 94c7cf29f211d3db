package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const writeTimeout = 60 * time.Second

// Handler streams events at GET /api/v1/events.
//
// Query parameters: "session" restricts the stream to one session.
// Reconnecting clients send Last-Event-ID (or "last_event_id" where headers
// cannot be set) to replay events they missed.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lastID, err := lastEventID(r)
	if err != nil {
		http.Error(w, "Invalid Last-Event-ID", http.StatusBadRequest)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("SSE streaming unsupported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, replay, err := h.manager.Connect(r.URL.Query().Get("session"), lastID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)
	log := h.logger.With(slog.String("client_id", client.ID))

	hello := Event{Type: "connected", Timestamp: time.Now(), Data: map[string]any{
		"client_id":     client.ID,
		"last_event_id": h.manager.LastEventID(),
		"replayed":      len(replay),
	}}
	if err := h.write(w, rc, hello); err != nil {
		log.Warn("failed to send connection event", slog.String("error", err.Error()))
		return
	}
	for _, e := range replay {
		if err := h.write(w, rc, e); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.write(w, rc, e); err != nil {
				log.Debug("SSE write failed, closing", slog.String("error", err.Error()))
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// write sends one frame: an optional "id:" line, the event type and the
// JSON-encoded event.
func (h *Handler) write(w http.ResponseWriter, rc *http.ResponseController, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if e.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", e.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Not every ResponseWriter supports deadlines.
	_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return nil
}

func lastEventID(r *http.Request) (uint64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
