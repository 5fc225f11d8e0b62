package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenant-hub/internal/broker"
	"tenant-hub/internal/config"
	"tenant-hub/internal/diag"
	"tenant-hub/internal/handlers"
	"tenant-hub/internal/history"
	"tenant-hub/internal/poll"
	"tenant-hub/internal/protocol"
	"tenant-hub/internal/registry"
	"tenant-hub/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize the structured audit log
	audit, err := diag.NewLogger(cfg.Log.File, cfg.Log.MaxSize)
	if err != nil {
		logger.Fatal("Failed to open audit log: %v", err)
	}
	defer audit.Close()

	// Initialize hub components
	reg := registry.New()
	rooms := broker.New()
	hist := history.NewBuffer(cfg.History.Capacity)
	handler := protocol.NewHandler(reg, rooms, hist, audit)

	// Long-poll fallback transport
	pollManager := poll.NewManager(handler, cfg.Poll.IdleTimeout, cfg.Poll.WaitTimeout)
	reapCtx, stopReaper := context.WithCancel(context.Background())
	go pollManager.Reap(reapCtx)

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(handler, cfg.Server.AllowedOrigins)
	pollHandlers := handlers.NewPollHandlers(pollManager)
	adminHandlers := handlers.NewAdminHandlers(reg, rooms, audit, cfg.Server.AllowedOrigins, cfg.Server.Port)

	// Setup routes
	router := mux.NewRouter()
	setupRoutes(router, wsHandlers, pollHandlers, adminHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(router, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Hub started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	logger.Info("📜 Audit log: %s", cfg.Log.File)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Hub shutting down...")

	stopReaper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
}

func setupRoutes(router *mux.Router, wsHandlers *handlers.WebSocketHandlers, pollHandlers *handlers.PollHandlers, adminHandlers *handlers.AdminHandlers) {
	// Side-channel endpoints
	router.HandleFunc("/health", adminHandlers.Health).Methods(http.MethodGet)
	router.HandleFunc("/stats", adminHandlers.Stats).Methods(http.MethodGet)
	router.HandleFunc("/diagnostics", adminHandlers.Diagnostics).Methods(http.MethodGet)
	router.HandleFunc("/logs", adminHandlers.Logs).Methods(http.MethodGet)

	// WebSocket transport
	router.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	// Long-poll fallback transport
	router.HandleFunc("/poll", pollHandlers.OpenSession).Methods(http.MethodPost)
	router.HandleFunc("/poll/{id}/events", pollHandlers.FetchEvents).Methods(http.MethodGet)
	router.HandleFunc("/poll/{id}/events", pollHandlers.EmitEvent).Methods(http.MethodPost)
	router.HandleFunc("/poll/{id}", pollHandlers.CloseSession).Methods(http.MethodDelete)
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /health")
	logger.Info("   GET  /stats")
	logger.Info("   GET  /diagnostics")
	logger.Info("   GET  /logs?level=&event=&limit=&offset=")
	logger.Info("   GET  /ws")
	logger.Info("   POST /poll")
	logger.Info("   GET  /poll/{id}/events")
	logger.Info("   POST /poll/{id}/events")
	logger.Info("   DELETE /poll/{id}")
}
