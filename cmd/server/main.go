/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll debt engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load TOML configuration (defaults when the file is absent)
  2. Initialize SQLite store
  3. Build the payroll service over the store
  4. Configure HTTP router and start the overdue sweeper
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the overdue sweeper
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults (payroll.db, port 8080)
  ./server serve

  # Run with a config file
  ./server serve --config=./payroll.toml

  # Run with an in-memory database
  ./server serve --db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: TOML configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anihan/payroll-engine/api"
	"github.com/anihan/payroll-engine/config"
	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
	"github.com/anihan/payroll-engine/store/sqlite"
)

func main() {
	var (
		configPath string
		dbOverride string
	)

	root := &cobra.Command{
		Use:   "payroll-engine",
		Short: "Farm labor debt allocation and payment reconciliation engine",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbOverride != "" {
				cfg.Database.Path = dbOverride
			}
			return run(cfg)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	serve.Flags().StringVar(&dbOverride, "db", "", "SQLite database path (overrides config)")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Build the engine
	service := payroll.NewService(store, payroll.Config{
		DefaultStrategy: ledger.Strategy(cfg.Ledger.DefaultStrategy),
		Remainder:       ledger.RemainderPolicy(cfg.Ledger.RemainderPolicy),
	})

	// Initialize handler and router
	handler := api.NewHandler(store, service)
	router := api.NewRouter(handler)

	// Background overdue sweep
	sweeper := api.NewOverdueSweeper(store, time.Duration(cfg.Scheduler.OverdueSweepMinutes)*time.Minute)
	sweeper.Start()
	defer sweeper.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
