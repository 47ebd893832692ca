// Command jobs runs one maintenance pass and exits, for use from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"finance/internal/clock"
	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/services"
	"finance/internal/store"
	"finance/internal/websocket"
)

const usage = "usage: jobs record-balances|record-missing|materialize|reconcile"

type runner struct {
	snapshots    *services.SnapshotService
	materializer *services.Materializer
	reconcile    *services.ReconcileService
	logger       *logging.Logger
}

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	database, err := db.Connect(cfg.DatabaseURL, db.Options{MaxOpenConns: 5, MaxIdleConns: 1})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	entries := store.NewEntryStore(database)
	audit := store.NewAuditStore(database)
	balances := store.NewBalanceStore(database)
	txRunner := db.NewTxRunner(database)
	// No connections are ever registered, so broadcasts are dropped.
	hub := websocket.NewHub()
	clk := clock.System{}

	ledger := services.NewLedgerService(txRunner, accounts, entries, balances, audit, hub, clk)
	r := runner{
		snapshots:    services.NewSnapshotService(txRunner, accounts, entries, balances, clk, logger),
		materializer: services.NewMaterializer(txRunner, store.NewRecurringStore(database), ledger, audit, hub, clk, logger),
		reconcile:    services.NewReconcileService(txRunner, accounts, entries, audit, hub, logger),
		logger:       logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.run(ctx, flag.Arg(0)); err != nil {
		logger.Error().Err(err).Str("job", flag.Arg(0)).Msg("job failed")
		os.Exit(1)
	}
}

func (r runner) run(ctx context.Context, job string) error {
	switch job {
	case "record-balances":
		written, err := r.snapshots.RecordMonthlyBalances(ctx)
		r.logger.Info().Int("accounts", written).Msg("monthly balances recorded")
		return err
	case "record-missing":
		written, err := r.snapshots.RecordMissingMonthlyBalances(ctx)
		r.logger.Info().Int("accounts", written).Msg("missing monthly balances recorded")
		return err
	case "materialize":
		results, err := r.materializer.TransactAll(ctx)
		for _, res := range results {
			r.logger.Info().Str("kind", string(res.Kind)).Int("created", res.Created).Int("failed", res.Failed).Msg("recurring materialized")
		}
		return err
	case "reconcile":
		results, err := r.reconcile.ReconcileAll(ctx)
		drifted := 0
		for _, res := range results {
			if !res.Drift.IsZero() {
				drifted++
				r.logger.Warn().Str("account_id", res.AccountID).Str("drift", res.Drift.StringFixed(2)).Msg("balance drift corrected")
			}
		}
		r.logger.Info().Int("accounts", len(results)).Int("drifted", drifted).Msg("reconcile complete")
		return err
	default:
		return fmt.Errorf("unknown job %q (%s)", job, usage)
	}
}
