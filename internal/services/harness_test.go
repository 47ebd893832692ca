package services

import (
	"time"

	"finance/internal/clock"
	"finance/internal/logging"
)

type harness struct {
	db  *memDB
	tx  *memTxRunner
	hub *stubHub
	now time.Time

	accounts  *memAccounts
	entries   *memEntries
	recurring *memRecurring
	balances  *memBalances
	audit     *memAudit

	ledger       *LedgerService
	snapshots    *SnapshotService
	projection   *ProjectionService
	reconcile    *ReconcileService
	materializer *Materializer
	accountSvc   *AccountService
	recurringSvc *RecurringService
}

func newHarness(now time.Time) *harness {
	db := newMemDB()
	h := &harness{
		db:        db,
		tx:        &memTxRunner{db: db},
		hub:       newStubHub(),
		now:       now,
		accounts:  &memAccounts{db: db},
		entries:   &memEntries{db: db},
		recurring: &memRecurring{db: db},
		balances:  &memBalances{db: db},
		audit:     &memAudit{db: db},
	}
	clk := clock.Func(func() time.Time { return h.now })
	logger := logging.NewSilent()
	h.ledger = NewLedgerService(h.tx, h.accounts, h.entries, h.balances, h.audit, h.hub, clk)
	h.snapshots = NewSnapshotService(h.tx, h.accounts, h.entries, h.balances, clk, logger)
	h.projection = NewProjectionService(h.accounts, h.entries, h.recurring, h.snapshots, clk)
	h.reconcile = NewReconcileService(h.tx, h.accounts, h.entries, h.audit, h.hub, logger)
	h.materializer = NewMaterializer(h.tx, h.recurring, h.ledger, h.audit, h.hub, clk, logger)
	h.accountSvc = NewAccountService(h.tx, h.accounts, h.entries, h.recurring, h.snapshots, h.audit, h.hub, clk, logger)
	h.recurringSvc = NewRecurringService(h.tx, h.accounts, h.recurring, h.audit)
	return h
}
