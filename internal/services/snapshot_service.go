package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finance/internal/calendar"
	"finance/internal/clock"
	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/models"
	"finance/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SnapshotService maintains month-end balance snapshots. Snapshots are a
// cache of a recomputable value and are never written for the current or a
// future month.
type SnapshotService struct {
	txRunner db.TxRunner
	accounts AccountStore
	entries  EntryStore
	balances BalanceStore
	clock    clock.Clock
	logger   *logging.Logger
}

func NewSnapshotService(txRunner db.TxRunner, accounts AccountStore, entries EntryStore, balances BalanceStore, clk clock.Clock, logger *logging.Logger) *SnapshotService {
	return &SnapshotService{
		txRunner: txRunner,
		accounts: accounts,
		entries:  entries,
		balances: balances,
		clock:    clk,
		logger:   logger,
	}
}

// BackfillBalancesForAccount rebuilds a month-end snapshot for every month
// from the account's first activity up to, not including, the current month.
// It returns the number of months written.
func (s *SnapshotService) BackfillBalancesForAccount(ctx context.Context, accountID string) (int, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, notFound(err, ErrAccountNotFound)
	}
	earliest, err := s.entries.EarliestTransactedAt(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("earliest entry: %w", err)
	}
	first := account.InitialDate
	if earliest != nil {
		first = *earliest
	}
	now := s.clock.Now()
	months := calendar.Months(first, now)
	if len(months) == 0 {
		return 0, nil
	}
	totals, err := s.entries.MonthlyTotals(ctx, accountID, months[0], calendar.PreviousMonthEnd(now))
	if err != nil {
		return 0, fmt.Errorf("monthly totals: %w", err)
	}
	net := netByPeriod(totals)

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		running := account.InitialBalance
		for _, month := range months {
			running = running.Add(net[month])
			if err := s.balances.Upsert(ctx, tx, accountID, calendar.EndOfMonth(month), running); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("account_id", accountID).Int("months", len(months)).Msg("balances backfilled")
	return len(months), nil
}

// CreateInitialBalanceEntries seeds a snapshot at initial_balance for every
// month between initial_date and the current month that has none yet.
func (s *SnapshotService) CreateInitialBalanceEntries(ctx context.Context, accountID string) (int, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, notFound(err, ErrAccountNotFound)
	}
	months := calendar.Months(account.InitialDate, s.clock.Now())
	if len(months) == 0 {
		return 0, nil
	}
	created := 0
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		created = 0
		for _, month := range months {
			inserted, err := s.balances.InsertIfMissing(ctx, tx, accountID, calendar.EndOfMonth(month), account.InitialBalance)
			if err != nil {
				return err
			}
			if inserted {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// RecordMonthlyBalances writes current_balance as last month's closing
// snapshot for every account, replacing a value recorded earlier.
func (s *SnapshotService) RecordMonthlyBalances(ctx context.Context) (int, error) {
	return s.record(ctx, func(tx store.Execer, account models.Account, day time.Time) (bool, error) {
		return true, s.balances.Upsert(ctx, tx, account.ID, day, account.CurrentBalance)
	})
}

// RecordMissingMonthlyBalances writes last month's closing snapshot only for
// accounts that do not have one.
func (s *SnapshotService) RecordMissingMonthlyBalances(ctx context.Context) (int, error) {
	return s.record(ctx, func(tx store.Execer, account models.Account, day time.Time) (bool, error) {
		return s.balances.InsertIfMissing(ctx, tx, account.ID, day, account.CurrentBalance)
	})
}

func (s *SnapshotService) record(ctx context.Context, write func(tx store.Execer, account models.Account, day time.Time) (bool, error)) (int, error) {
	day := calendar.PreviousMonthEnd(s.clock.Now())
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	var errs []error
	for _, account := range accounts {
		if !calendar.Day(account.InitialDate).After(day) {
			var wrote bool
			err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
				var err error
				wrote, err = write(tx, account, day)
				return err
			})
			if err != nil {
				s.logger.Error().Err(err).Str("account_id", account.ID).Msg("record monthly balance failed")
				errs = append(errs, fmt.Errorf("account %s: %w", account.ID, err))
				continue
			}
			if wrote {
				written++
			}
		}
	}
	s.logger.Info().Time("recorded_until", day).Int("written", written).Msg("monthly balances recorded")
	return written, errors.Join(errs...)
}

// StartingBalance is the balance at the close of the day before start. It
// anchors on the newest snapshot recorded on or before that day, or on
// initial_balance when there is none, and rolls the anchor forward by the
// actual ledger up to the day before start.
func (s *SnapshotService) StartingBalance(ctx context.Context, account models.Account, start time.Time) (decimal.Decimal, error) {
	dayBefore := calendar.AddDays(calendar.Day(start), -1)
	snapshot, err := s.balances.LatestOnOrBefore(ctx, account.ID, dayBefore)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest snapshot: %w", err)
	}
	anchor := account.InitialBalance
	var from *time.Time
	if snapshot != nil {
		anchor = snapshot.Balance
		next := calendar.AddDays(snapshot.RecordedUntil, 1)
		if next.After(dayBefore) {
			return anchor, nil
		}
		from = &next
	}
	totals, err := s.entries.TotalsBetween(ctx, account.ID, from, &dayBefore)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger totals: %w", err)
	}
	return anchor.Add(totals.Net()), nil
}

// BalanceForDate is the actual balance at the close of day.
func (s *SnapshotService) BalanceForDate(ctx context.Context, accountID string, day time.Time) (decimal.Decimal, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, notFound(err, ErrAccountNotFound)
	}
	return s.StartingBalance(ctx, account, calendar.AddDays(calendar.Day(day), 1))
}

func (s *SnapshotService) List(ctx context.Context, accountID string) ([]models.Balance, error) {
	return s.balances.ListByAccount(ctx, accountID)
}

// netByPeriod folds category totals into one signed net change per period.
func netByPeriod(totals []store.CategoryTotal) map[time.Time]decimal.Decimal {
	net := make(map[time.Time]decimal.Decimal, len(totals))
	for _, total := range totals {
		period := calendar.Day(total.Period)
		net[period] = net[period].Add(signed(total.Category, total.Total))
	}
	return net
}

func signed(category string, amount decimal.Decimal) decimal.Decimal {
	switch category {
	case store.CategoryExpense, store.CategoryTransferOut:
		return amount.Neg()
	}
	return amount
}
