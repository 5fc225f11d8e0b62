package handlers

import (
	"net/http"

	"tenant-hub/internal/identity"
	"tenant-hub/internal/protocol"
	"tenant-hub/internal/registry"
	ws "tenant-hub/internal/websocket"
	"tenant-hub/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	handler  *protocol.Handler
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(handler *protocol.Handler, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Identity claims are read before the upgrade but never gate it: the hub
	// accepts them on trust and only records the outcome.
	claims, claimsErr := identity.FromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.handler)
	h.handler.HandleConnect(client, registry.TransportWebSocket, r.RemoteAddr, r.UserAgent(), claims, claimsErr)

	go client.WritePump()
	go client.ReadPump()
}

// originChecker allows any origin when the list contains "*", otherwise it
// requires an exact match. Browser clients without an Origin header are
// allowed through.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[origin]
	}
}
