package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"devicesync/auth"
	"devicesync/infrastructure/storage"
	"devicesync/infrastructure/ws"
	"devicesync/internal"
	"devicesync/observability"
	"devicesync/runtime"
	"devicesync/runtime/workers"
	"devicesync/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the gateway and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := internal.NewLogger(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	// Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	store := runtime.NewConversationStore()
	queue := runtime.NewOfflineQueue(config.OfflineQueueCapacity)
	coordinator := runtime.NewHandoffCoordinator(log, registry, store, metrics)
	devices := storage.NewDeviceRepository(db, log)

	service := services.NewSyncService(log, registry, store, queue,
		coordinator, devices, metrics, config.HandoffAckTimeout)

	if config.DebugPort > 0 {
		log.Info("Starting debug inspect server", "port", config.DebugPort)
		internal.StartDebugServer(db, config.DebugPort, func() map[string]any {
			snapshot := metrics.GetLatest()
			return map[string]any{
				"rooms":              len(registry.Rooms()),
				"offline_queues":     len(queue.Depths()),
				"messages_relayed":   snapshot.MessagesRelayed,
				"handoffs_succeeded": snapshot.HandoffsSucceeded,
			}
		})
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewHealthWorker(log, metrics, registry, queue, config.MetricInterval))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. Websocket gateway
	verifier := auth.NewVerifier([]byte(config.AuthSecret))
	gateway := ws.NewServer(log, verifier, service, metrics,
		config.ConnectionBufferSize, config.WriteTimeout, config.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.HandleWebSocket)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting sync server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup: courtesy notice first, then stop accepting and
	// drain what is in flight.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	service.AnnounceShutdown(shutdownCtx, "server is shutting down")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown was not clean", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return exitOK, nil
}
