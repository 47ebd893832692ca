package services

import (
	"context"

	"finance/internal/clock"
	"finance/internal/db"
	"finance/internal/models"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LedgerService writes incomes, expenses and transfers and keeps each touched
// account's current_balance, and any month-end snapshot already recorded on or
// after the entry's day, in step within the same transaction.
type LedgerService struct {
	txRunner db.TxRunner
	accounts AccountStore
	entries  EntryStore
	balances BalanceStore
	audit    AuditStore
	hub      BalanceHub
	clock    clock.Clock
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, entries EntryStore, balances BalanceStore, audit AuditStore, hub BalanceHub, clk clock.Clock) *LedgerService {
	return &LedgerService{
		txRunner: txRunner,
		accounts: accounts,
		entries:  entries,
		balances: balances,
		audit:    audit,
		hub:      hub,
		clock:    clk,
	}
}

func (s *LedgerService) Create(ctx context.Context, userID string, entry models.Entry) (models.Entry, error) {
	if err := entry.Validate(); err != nil {
		return models.Entry{}, err
	}
	if err := s.authorize(ctx, userID, entry.AccountIDs()...); err != nil {
		return models.Entry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.TransactedAt.IsZero() {
		entry.TransactedAt = s.clock.Now()
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		changes, err = s.createInTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "entry.create", string(entry.Kind), entry.ID, entry)
	})
	if err != nil {
		return models.Entry{}, err
	}
	broadcast(s.hub, websocket.UpdateLedger, changes)
	return entry, nil
}

// createInTx inserts entry and applies its deltas inside an open transaction.
func (s *LedgerService) createInTx(ctx context.Context, tx store.Tx, entry models.Entry) ([]balanceChange, error) {
	locked, err := lockAccounts(ctx, tx, s.accounts, entry.AccountIDs()...)
	if err != nil {
		return nil, err
	}
	if err := s.entries.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := shiftSnapshots(ctx, tx, s.balances, entryShifts(nil, &entry)); err != nil {
		return nil, err
	}
	return applyDeltas(ctx, tx, s.accounts, locked, models.MergeDeltas(entry.Deltas()))
}

// Update replaces an entry. The old deltas are reversed and the new ones
// applied as one netted set, so moving an entry between accounts and editing
// its amount in place are handled the same way.
func (s *LedgerService) Update(ctx context.Context, userID string, entry models.Entry) (models.Entry, error) {
	if err := entry.Validate(); err != nil {
		return models.Entry{}, err
	}
	if err := s.authorize(ctx, userID, entry.AccountIDs()...); err != nil {
		return models.Entry{}, err
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		old, err := s.entries.GetForUpdate(ctx, tx, entry.Kind, entry.ID)
		if err != nil {
			return notFound(err, ErrEntryNotFound)
		}
		if err := s.authorize(ctx, userID, old.AccountIDs()...); err != nil {
			return err
		}
		if entry.TransactedAt.IsZero() {
			entry.TransactedAt = old.TransactedAt
		}
		ids := append(old.AccountIDs(), entry.AccountIDs()...)
		locked, err := lockAccounts(ctx, tx, s.accounts, ids...)
		if err != nil {
			return err
		}
		rows, err := s.entries.Update(ctx, tx, entry)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrEntryNotFound
		}
		deltas := models.MergeDeltas(models.Reverse(old.Deltas()), entry.Deltas())
		changes, err = applyDeltas(ctx, tx, s.accounts, locked, deltas)
		if err != nil {
			return err
		}
		if err := shiftSnapshots(ctx, tx, s.balances, entryShifts(&old, &entry)); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "entry.update", string(entry.Kind), entry.ID, map[string]models.Entry{
			"before": old,
			"after":  entry,
		})
	})
	if err != nil {
		return models.Entry{}, err
	}
	broadcast(s.hub, websocket.UpdateLedger, changes)
	return entry, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID string, kind models.EntryKind, entryID string) error {
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		old, err := s.entries.GetForUpdate(ctx, tx, kind, entryID)
		if err != nil {
			return notFound(err, ErrEntryNotFound)
		}
		if err := s.authorize(ctx, userID, old.AccountIDs()...); err != nil {
			return err
		}
		locked, err := lockAccounts(ctx, tx, s.accounts, old.AccountIDs()...)
		if err != nil {
			return err
		}
		rows, err := s.entries.Delete(ctx, tx, kind, entryID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrEntryNotFound
		}
		changes, err = applyDeltas(ctx, tx, s.accounts, locked, models.MergeDeltas(models.Reverse(old.Deltas())))
		if err != nil {
			return err
		}
		if err := shiftSnapshots(ctx, tx, s.balances, entryShifts(&old, nil)); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "entry.delete", string(kind), entryID, old)
	})
	if err != nil {
		return err
	}
	broadcast(s.hub, websocket.UpdateLedger, changes)
	return nil
}

func (s *LedgerService) Get(ctx context.Context, userID string, kind models.EntryKind, entryID string) (models.Entry, error) {
	entry, err := s.entries.GetByID(ctx, kind, entryID)
	if err != nil {
		return models.Entry{}, notFound(err, ErrEntryNotFound)
	}
	if err := s.authorize(ctx, userID, entry.AccountIDs()...); err != nil {
		if err == ErrAccountNotFound {
			return models.Entry{}, ErrEntryNotFound
		}
		return models.Entry{}, err
	}
	return entry, nil
}

func (s *LedgerService) List(ctx context.Context, userID, accountID string, limit, offset int) ([]models.Entry, error) {
	if err := s.authorize(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.entries.ListByAccount(ctx, accountID, limit, offset)
}

// authorize checks that every account is visible to userID.
func (s *LedgerService) authorize(ctx context.Context, userID string, accountIDs ...string) error {
	for _, id := range uniqueSorted(accountIDs) {
		if _, err := s.accounts.GetVisible(ctx, id, userID); err != nil {
			return notFound(err, ErrAccountNotFound)
		}
	}
	return nil
}
