/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load optional .env file, parse command-line flags
  2. Initialize structured logger
  3. Initialize SQLite store
  4. Create API handler with dependencies
  5. Start the consumption scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080, env PORT)
  -db          SQLite database path (default: budgets.db, env DATABASE_PATH)
               Use ":memory:" for an in-memory database
  -scheduler   Enable the automated consumption scheduler (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/budgets.db"

  # Run with in-memory database, no scheduler
  ./server -db=":memory:" -scheduler=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Automated daily consumption
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DATABASE_PATH", "budgets.db"), "SQLite database path")
	schedulerOn := flag.Bool("scheduler", true, "enable the automated consumption scheduler")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, logger)
	router := api.NewRouter(handler)

	// Consumption scheduler
	scheduler := api.NewConsumptionScheduler(handler.Processor, logger)
	scheduler.Enabled = *schedulerOn
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
