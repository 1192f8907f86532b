package main

import (
	"campus-chat/infrastructure/api"
	"campus-chat/infrastructure/realtime"
	"campus-chat/infrastructure/storage"
	"campus-chat/internal"
	"campus-chat/observability"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"
	"campus-chat/sink"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	messageRepository, err := storage.NewMessageRepository(db, log)
	if err != nil {
		return err
	}
	defer func() { _ = messageRepository.Close() }()

	// 3. Setup Supervision & Orchestration
	metrics := observability.NewMetrics()
	trimmer := storage.NewTrimmer(messageRepository, log, metrics, config.RetentionLimit)
	orchestrator := runtime.NewOrchestrator(
		log, workers.NewSupervisor(log, config.RestartInterval), runtime.NewRegistry(),
		messageRepository, trimmer, metrics,
		config.EventBufferSize, config.SinkTimeout, config.RetentionCron,
	)
	orchestrator.MonitorQueue(config.MetricInterval)
	if config.AuditLog {
		orchestrator.Add(sink.NewAuditSink(log))
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the Engine
	if err = orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator failed to start: %w", err)
	}
	defer orchestrator.Stop()

	// Converge a store left above the limit by a previous run
	if _, err = trimmer.Trim(); err != nil {
		log.Warn("Initial trim failed", "error", err)
	}

	// 6. HTTP Server Setup
	chatService := services.NewChatService(orchestrator)
	feed := realtime.NewChatServer(log, chatService, config.RetentionLimit,
		config.ConnectionBufferSize, config.PongWait, config.AllowedOrigin)
	router := api.NewRouter(log, chatService, config.RetentionLimit,
		[]byte(config.AuthSecret), feed, metrics.Handler())

	server := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Open WebSocket sessions end when ctx is cancelled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
