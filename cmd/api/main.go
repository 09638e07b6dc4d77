package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tictactoe-server/internal/config"
	"tictactoe-server/internal/server"
)

func gracefulShutdown(ctx context.Context, stop context.CancelFunc, customServer *server.Server, httpServer *http.Server, done chan bool) {
	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("Shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close websockets first so every handler releases its watches.
	if err := customServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during custom shutdown: %v", err)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown with error: %v", err)
	}

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := server.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer backend.Close()

	customServer, httpServer := server.NewServer(cfg, backend)

	// A failed background task (feed listener, cleanup) shuts the server down like a signal.
	go func() {
		if err := customServer.Run(ctx); err != nil {
			log.Printf("Background task failed: %v", err)
			stop()
		}
	}()

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(ctx, stop, customServer, httpServer, done)

	log.Printf("Listening on %s (store=%s, feed=%s)", httpServer.Addr, cfg.StoreDriver, cfg.FeedDriver)
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("http server error: %s", err)
		return
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")
}
