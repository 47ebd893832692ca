package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance/internal/clock"
	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/handlers"
	"finance/internal/jobs"
	"finance/internal/logging"
	"finance/internal/services"
	"finance/internal/store"
	"finance/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	database, err := db.Connect(cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	users := store.NewUserStore(database)
	admins := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	accounts := store.NewAccountStore(database)
	entries := store.NewEntryStore(database)
	recurring := store.NewRecurringStore(database)
	balances := store.NewBalanceStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub(cfg.AllowedOrigins...)
	clk := clock.System{}

	snapshots := services.NewSnapshotService(txRunner, accounts, entries, balances, clk, logger)
	ledger := services.NewLedgerService(txRunner, accounts, entries, balances, audit, hub, clk)
	materializer := services.NewMaterializer(txRunner, recurring, ledger, audit, hub, clk, logger)

	handler := handlers.New(cfg, txRunner, handlers.Deps{
		Users:        users,
		Admins:       admins,
		Audit:        audit,
		Accounts:     services.NewAccountService(txRunner, accounts, entries, recurring, snapshots, audit, hub, clk, logger),
		Ledger:       ledger,
		Recurring:    services.NewRecurringService(txRunner, accounts, recurring, audit),
		Projection:   services.NewProjectionService(accounts, entries, recurring, snapshots, clk),
		Snapshots:    snapshots,
		Reconcile:    services.NewReconcileService(txRunner, accounts, entries, audit, hub, logger),
		Materializer: materializer,
	}, hub, clk, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunScheduler {
		scheduler := jobs.NewScheduler(snapshots, materializer, clk, logger, cfg.SchedulerInterval)
		go scheduler.Run(ctx)
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("env", cfg.AppEnv).Msg("finance API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
