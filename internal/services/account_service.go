package services

import (
	"context"
	"strings"
	"time"

	"finance/internal/calendar"
	"finance/internal/clock"
	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/models"
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type AccountInput struct {
	Name           string
	Type           models.AccountType
	InitialBalance decimal.Decimal
	InitialDate    time.Time
	Data           models.AccountData
}

func (in AccountInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || !in.Type.Valid() {
		return ErrInvalidAccount
	}
	return nil
}

type AccountService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	entries   EntryStore
	recurring RecurringStore
	snapshots *SnapshotService
	audit     AuditStore
	hub       BalanceHub
	clock     clock.Clock
	logger    *logging.Logger
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore, entries EntryStore, recurring RecurringStore, snapshots *SnapshotService, audit AuditStore, hub BalanceHub, clk clock.Clock, logger *logging.Logger) *AccountService {
	return &AccountService{
		txRunner:  txRunner,
		accounts:  accounts,
		entries:   entries,
		recurring: recurring,
		snapshots: snapshots,
		audit:     audit,
		hub:       hub,
		clock:     clk,
		logger:    logger,
	}
}

// Create opens an account with current_balance equal to initial_balance and
// seeds month-end snapshots for months that already elapsed.
func (s *AccountService) Create(ctx context.Context, userID string, in AccountInput) (models.Account, error) {
	if err := in.validate(); err != nil {
		return models.Account{}, err
	}
	initialDate := calendar.Day(in.InitialDate)
	if in.InitialDate.IsZero() {
		initialDate = calendar.Day(s.clock.Now())
	}
	data := in.Data
	if data == nil {
		data = models.AccountData{}
	}
	account := models.Account{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		InitialBalance: in.InitialBalance,
		InitialDate:    initialDate,
		CurrentBalance: in.InitialBalance,
		Data:           data,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "account.create", "account", account.ID, account)
	})
	if err != nil {
		return models.Account{}, err
	}
	seeded, err := s.snapshots.CreateInitialBalanceEntries(ctx, account.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", account.ID).Msg("seed initial balances failed")
	} else if seeded > 0 {
		s.logger.Debug().Str("account_id", account.ID).Int("months", seeded).Msg("initial balances seeded")
	}
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, userID, accountID string) (models.Account, error) {
	account, err := s.accounts.GetVisible(ctx, accountID, userID)
	if err != nil {
		return models.Account{}, notFound(err, ErrAccountNotFound)
	}
	return account, nil
}

func (s *AccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	return s.accounts.ListVisible(ctx, userID)
}

// Update edits account fields. A changed initial_balance moves
// current_balance and every recorded snapshot by the same amount.
func (s *AccountService) Update(ctx context.Context, userID, accountID string, in AccountInput) (models.Account, error) {
	if err := in.validate(); err != nil {
		return models.Account{}, err
	}
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return models.Account{}, err
	}
	var updated models.Account
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		locked, err := lockAccounts(ctx, tx, s.accounts, accountID)
		if err != nil {
			return err
		}
		current := locked[accountID]
		updated = current
		updated.Name = strings.TrimSpace(in.Name)
		updated.Type = in.Type
		updated.InitialBalance = in.InitialBalance
		if !in.InitialDate.IsZero() {
			updated.InitialDate = calendar.Day(in.InitialDate)
		}
		if in.Data != nil {
			updated.Data = in.Data
		}
		if _, err := s.accounts.Update(ctx, tx, updated); err != nil {
			return err
		}
		delta := in.InitialBalance.Sub(current.InitialBalance)
		if !delta.IsZero() {
			changes, err = applyDeltas(ctx, tx, s.accounts, locked, []models.Delta{{AccountID: accountID, Amount: delta}})
			if err != nil {
				return err
			}
			updated.CurrentBalance = current.CurrentBalance.Add(delta)
			// initial_balance underlies every recorded snapshot
			if err := shiftSnapshots(ctx, tx, s.snapshots.balances, []snapshotShift{{AccountID: accountID, Amount: delta}}); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "account.update", "account", accountID, updated)
	})
	if err != nil {
		return models.Account{}, err
	}
	broadcast(s.hub, websocket.UpdateLedger, changes)
	return updated, nil
}

// Delete removes an account with its entries and recurring definitions.
// Transfers with another account are reversed on that account first so its
// current_balance stays consistent with its remaining ledger.
func (s *AccountService) Delete(ctx context.Context, userID, accountID string) error {
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return err
	}
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		transfers, err := s.entries.ListTransfersForAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		var counterpart []models.Delta
		var shifts []snapshotShift
		for _, transfer := range transfers {
			for _, delta := range models.Reverse(transfer.Deltas()) {
				if delta.AccountID != accountID {
					counterpart = append(counterpart, delta)
					shifts = append(shifts, snapshotShift{AccountID: delta.AccountID, Day: calendar.Day(transfer.TransactedAt), Amount: delta.Amount})
				}
			}
		}
		deltas := models.MergeDeltas(counterpart)
		locked, err := lockAccounts(ctx, tx, s.accounts, append(deltaAccountIDs(deltas), accountID)...)
		if err != nil {
			return err
		}
		changes, err = applyDeltas(ctx, tx, s.accounts, locked, deltas)
		if err != nil {
			return err
		}
		if err := shiftSnapshots(ctx, tx, s.snapshots.balances, mergeShifts(shifts)); err != nil {
			return err
		}
		if err := s.entries.DeleteByAccount(ctx, tx, accountID); err != nil {
			return err
		}
		if err := s.recurring.DeleteByAccount(ctx, tx, accountID); err != nil {
			return err
		}
		rows, err := s.accounts.Delete(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAccountNotFound
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "account.delete", "account", accountID, map[string]int{
			"transfers_reversed": len(transfers),
		})
	})
	if err != nil {
		return err
	}
	broadcast(s.hub, websocket.UpdateLedger, changes)
	return nil
}
