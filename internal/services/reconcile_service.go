package services

import (
	"context"
	"errors"
	"fmt"

	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ReconcileResult reports the cached balance before and after a recompute.
// A non-zero Drift means the cached value had diverged from the ledger.
type ReconcileResult struct {
	AccountID string          `json:"account_id"`
	Previous  decimal.Decimal `json:"previous_balance"`
	Current   decimal.Decimal `json:"current_balance"`
	Drift     decimal.Decimal `json:"drift"`
}

// ReconcileService recomputes current_balance from the full ledger. It never
// touches balance snapshots.
type ReconcileService struct {
	txRunner db.TxRunner
	accounts AccountStore
	entries  EntryStore
	audit    AuditStore
	hub      BalanceHub
	logger   *logging.Logger
}

func NewReconcileService(txRunner db.TxRunner, accounts AccountStore, entries EntryStore, audit AuditStore, hub BalanceHub, logger *logging.Logger) *ReconcileService {
	return &ReconcileService{
		txRunner: txRunner,
		accounts: accounts,
		entries:  entries,
		audit:    audit,
		hub:      hub,
		logger:   logger,
	}
}

func (s *ReconcileService) Reconcile(ctx context.Context, accountID string) (ReconcileResult, error) {
	var result ReconcileResult
	var ownerID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockAccounts(ctx, tx, s.accounts, accountID)
		if err != nil {
			return err
		}
		account := locked[accountID]
		ownerID = account.UserID
		totals, err := s.entries.Totals(ctx, tx, accountID)
		if err != nil {
			return fmt.Errorf("ledger totals: %w", err)
		}
		computed := account.InitialBalance.Add(totals.Net())
		result = ReconcileResult{
			AccountID: accountID,
			Previous:  account.CurrentBalance,
			Current:   computed,
			Drift:     computed.Sub(account.CurrentBalance),
		}
		if result.Drift.IsZero() {
			return nil
		}
		if err := s.accounts.SetCurrentBalance(ctx, tx, accountID, computed); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, nil, "account.reconcile", "account", accountID, result)
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if !result.Drift.IsZero() {
		s.logger.Warn().
			Str("account_id", accountID).
			Str("previous", result.Previous.StringFixed(2)).
			Str("current", result.Current.StringFixed(2)).
			Msg("balance drift corrected")
		broadcast(s.hub, websocket.UpdateReconcile, []balanceChange{{
			OwnerID:   ownerID,
			AccountID: accountID,
			Balance:   result.Current,
		}})
	}
	return result, nil
}

// ReconcileAll reconciles every account, continuing past individual failures.
func (s *ReconcileService) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(accounts))
	var errs []error
	for _, account := range accounts {
		result, err := s.Reconcile(ctx, account.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("account_id", account.ID).Msg("reconcile failed")
			errs = append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
