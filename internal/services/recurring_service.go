package services

import (
	"context"
	"errors"

	"finance/internal/db"
	"finance/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RecurringService manages recurring definitions. Invalid schedules are
// rejected here so materialization never meets them.
type RecurringService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	recurring RecurringStore
	audit     AuditStore
}

func NewRecurringService(txRunner db.TxRunner, accounts AccountStore, recurring RecurringStore, audit AuditStore) *RecurringService {
	return &RecurringService{
		txRunner:  txRunner,
		accounts:  accounts,
		recurring: recurring,
		audit:     audit,
	}
}

func validateRecurring(rec models.Recurring) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.NextTransactionAt.IsZero() {
		return ErrMissingSchedule
	}
	return nil
}

func (s *RecurringService) Create(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error) {
	if err := validateRecurring(rec); err != nil {
		return models.Recurring{}, err
	}
	if err := s.authorize(ctx, userID, rec.AccountIDs()...); err != nil {
		return models.Recurring{}, err
	}
	rec.ID = uuid.NewString()
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.recurring.Create(ctx, tx, rec); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "recurring.create", string(rec.Kind), rec.ID, rec)
	})
	if err != nil {
		return models.Recurring{}, err
	}
	return rec, nil
}

func (s *RecurringService) Get(ctx context.Context, userID string, kind models.EntryKind, id string) (models.Recurring, error) {
	rec, err := s.recurring.GetByID(ctx, kind, id)
	if err != nil {
		return models.Recurring{}, notFound(err, ErrRecurringNotFound)
	}
	if err := s.authorize(ctx, userID, rec.AccountIDs()...); err != nil {
		return models.Recurring{}, hidden(err)
	}
	return rec, nil
}

func (s *RecurringService) ListByAccount(ctx context.Context, userID, accountID string) ([]models.Recurring, error) {
	if err := s.authorize(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.recurring.ListByAccount(ctx, accountID)
}

func (s *RecurringService) Update(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error) {
	if err := validateRecurring(rec); err != nil {
		return models.Recurring{}, err
	}
	if err := s.authorize(ctx, userID, rec.AccountIDs()...); err != nil {
		return models.Recurring{}, err
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		old, err := s.recurring.GetForUpdate(ctx, tx, rec.Kind, rec.ID)
		if err != nil {
			return notFound(err, ErrRecurringNotFound)
		}
		if err := s.authorize(ctx, userID, old.AccountIDs()...); err != nil {
			return hidden(err)
		}
		if _, err := s.recurring.Update(ctx, tx, rec); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "recurring.update", string(rec.Kind), rec.ID, rec)
	})
	if err != nil {
		return models.Recurring{}, err
	}
	return rec, nil
}

func (s *RecurringService) Delete(ctx context.Context, userID string, kind models.EntryKind, id string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		old, err := s.recurring.GetForUpdate(ctx, tx, kind, id)
		if err != nil {
			return notFound(err, ErrRecurringNotFound)
		}
		if err := s.authorize(ctx, userID, old.AccountIDs()...); err != nil {
			return hidden(err)
		}
		if _, err := s.recurring.Delete(ctx, tx, kind, id); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, stringPtr(userID), "recurring.delete", string(kind), id, old)
	})
}

func (s *RecurringService) authorize(ctx context.Context, userID string, accountIDs ...string) error {
	for _, id := range uniqueSorted(accountIDs) {
		if _, err := s.accounts.GetVisible(ctx, id, userID); err != nil {
			return notFound(err, ErrAccountNotFound)
		}
	}
	return nil
}

// hidden reports a definition on an account the user cannot see as missing.
func hidden(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return ErrRecurringNotFound
	}
	return err
}
