/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency wiring, the background accrual scheduler, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse flags, load configuration (file + LEAVE_* environment)
  2. Build the zap logger
  3. Open the SQLite store and auto-migrate
  4. Wire ledger, calendar, workflow, accrual engine, handlers
  5. Start the accrual scheduler (if enabled) and the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; defaults apply)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for an in-flight run
  4. Close the database

EXAMPLES:
  # Run with defaults (data/leave.db, port 8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Override via environment
  LEAVE_DATABASE_PATH=:memory: LEAVE_SERVER_PORT=3000 ./server

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()

	// Wiring
	ledger := engine.NewBalanceLedger(store, logger)
	ledger.SetLockWait(cfg.Ledger.LockWait)

	calendar := leave.NewCalendar(leave.StoreHolidaySource{Store: store}, logger)
	calc := leave.NewSandwichCalculator(calendar)
	notifier := leave.NewLogNotifier(logger)
	workflow := leave.NewWorkflow(store, ledger, calc, notifier, logger)
	accrual := leave.NewAccrualEngine(store, ledger, notifier, logger)

	handler := api.NewHandler(store, ledger, workflow, accrual, calendar, logger)
	handler.Attachments = leave.NewMemoryAttachments()
	router := api.NewRouter(handler)

	var scheduler *api.AccrualScheduler
	if cfg.Scheduler.Enabled {
		scheduler = api.NewAccrualScheduler(accrual, cfg.Scheduler.Interval, logger)
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("server stopped")
}

func buildLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
