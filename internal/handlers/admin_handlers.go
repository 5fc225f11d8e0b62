package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tenant-hub/internal/broker"
	"tenant-hub/internal/diag"
	"tenant-hub/internal/registry"
	"tenant-hub/pkg/logger"
)

// AdminHandlers serves the side-channel HTTP endpoints: liveness, coarse
// metrics, the debugging snapshot, and the structured-log query.
type AdminHandlers struct {
	registry       *registry.Registry
	broker         *broker.Broker
	audit          *diag.Logger
	allowedOrigins []string
	port           string
	startedAt      time.Time
}

func NewAdminHandlers(reg *registry.Registry, br *broker.Broker, audit *diag.Logger, allowedOrigins []string, port string) *AdminHandlers {
	return &AdminHandlers{
		registry:       reg,
		broker:         br,
		audit:          audit,
		allowedOrigins: allowedOrigins,
		port:           port,
		startedAt:      time.Now(),
	}
}

func (h *AdminHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().Format(time.RFC3339),
		"connections": h.registry.Count(),
	})
}

func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalConnections": h.registry.Count(),
		"activeRooms":      h.broker.RoomCount(),
		"uptime":           time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// Diagnostics returns the full debugging snapshot: server info, every live
// connection with its rooms, the room membership counts, the transport
// breakdown, and the CORS policy. Not meant for high-frequency polling.
func (h *AdminHandlers) Diagnostics(w http.ResponseWriter, r *http.Request) {
	transports := map[string]int{}
	for transport, count := range h.registry.TransportBreakdown() {
		transports[string(transport)] = count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": map[string]interface{}{
			"port":      h.port,
			"startedAt": h.startedAt.Format(time.RFC3339),
			"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		},
		"connections": h.registry.Snapshot(),
		"rooms":       h.broker.Rooms(),
		"transports":  transports,
		"cors": map[string]interface{}{
			"allowedOrigins": h.allowedOrigins,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Logs handles GET /logs?level=&event=&limit=&offset= against the active
// structured log file.
func (h *AdminHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	query := diag.Query{
		Level: diag.Level(strings.ToUpper(r.URL.Query().Get("level"))),
		Event: r.URL.Query().Get("event"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		query.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		query.Offset = offset
	}

	result, err := h.audit.RunQuery(query)
	if err != nil {
		logger.Error("Log query error: %v", err)
		http.Error(w, "log query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Response encode error: %v", err)
	}
}
