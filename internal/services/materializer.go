package services

import (
	"context"
	"errors"
	"time"

	"finance/internal/clock"
	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/models"
	"finance/internal/recurrence"
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var errNotDue = errors.New("recurring definition is not due")

// Materializer turns due recurring definitions into concrete ledger entries.
// Each definition is handled in its own transaction; one failure is logged
// and the run moves on.
type Materializer struct {
	txRunner  db.TxRunner
	recurring RecurringStore
	ledger    *LedgerService
	audit     AuditStore
	hub       BalanceHub
	clock     clock.Clock
	logger    *logging.Logger
}

func NewMaterializer(txRunner db.TxRunner, recurring RecurringStore, ledger *LedgerService, audit AuditStore, hub BalanceHub, clk clock.Clock, logger *logging.Logger) *Materializer {
	return &Materializer{
		txRunner:  txRunner,
		recurring: recurring,
		ledger:    ledger,
		audit:     audit,
		hub:       hub,
		clock:     clk,
		logger:    logger,
	}
}

// MaterializeResult counts what one run did for one kind.
type MaterializeResult struct {
	Kind    models.EntryKind `json:"kind"`
	Created int              `json:"created"`
	Failed  int              `json:"failed"`
}

func (m *Materializer) TransactRecurringIncome(ctx context.Context) (MaterializeResult, error) {
	return m.transact(ctx, models.KindIncome)
}

func (m *Materializer) TransactRecurringExpense(ctx context.Context) (MaterializeResult, error) {
	return m.transact(ctx, models.KindExpense)
}

func (m *Materializer) TransactRecurringTransfer(ctx context.Context) (MaterializeResult, error) {
	return m.transact(ctx, models.KindTransfer)
}

// TransactAll runs every kind and stops only on a listing failure.
func (m *Materializer) TransactAll(ctx context.Context) ([]MaterializeResult, error) {
	results := make([]MaterializeResult, 0, len(models.EntryKinds))
	for _, kind := range models.EntryKinds {
		result, err := m.transact(ctx, kind)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (m *Materializer) transact(ctx context.Context, kind models.EntryKind) (MaterializeResult, error) {
	result := MaterializeResult{Kind: kind}
	now := m.clock.Now()
	due, err := m.recurring.ListDue(ctx, kind, now)
	if err != nil {
		return result, err
	}
	for _, def := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry, err := m.materialize(ctx, kind, def.ID, now)
		switch {
		case errors.Is(err, errNotDue):
			continue
		case err != nil:
			result.Failed++
			m.logger.Warn().Err(err).
				Str("kind", string(kind)).
				Str("recurring_id", def.ID).
				Msg("materialize recurring entry failed")
			continue
		}
		result.Created++
		m.logger.Debug().
			Str("kind", string(kind)).
			Str("recurring_id", def.ID).
			Str("entry_id", entry.ID).
			Time("transacted_at", entry.TransactedAt).
			Msg("materialized recurring entry")
	}
	if result.Created > 0 || result.Failed > 0 {
		m.logger.Info().
			Str("kind", string(kind)).
			Int("created", result.Created).
			Int("failed", result.Failed).
			Msg("recurring materialization finished")
	}
	return result, nil
}

// materialize writes the occurrence at next_transaction_at and advances the
// definition, deleting it once its remaining count runs out.
func (m *Materializer) materialize(ctx context.Context, kind models.EntryKind, id string, now time.Time) (models.Entry, error) {
	var entry models.Entry
	var changes []balanceChange
	err := m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		def, err := m.recurring.GetForUpdate(ctx, tx, kind, id)
		if err != nil {
			if notFound(err, ErrRecurringNotFound) == ErrRecurringNotFound {
				return errNotDue
			}
			return err
		}
		if def.NextTransactionAt.After(now) {
			return errNotDue
		}
		if def.RemainingRecurrences != nil && *def.RemainingRecurrences <= 0 {
			return errNotDue
		}
		next, err := recurrence.Advance(def.NextTransactionAt, def.Frequency)
		if err != nil {
			return err
		}
		entry = def.Occurrence(uuid.NewString(), def.NextTransactionAt)
		changes, err = m.ledger.createInTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		if def.RemainingRecurrences != nil {
			remaining := *def.RemainingRecurrences - 1
			if remaining <= 0 {
				if _, err := m.recurring.Delete(ctx, tx, kind, id); err != nil {
					return err
				}
			} else if err := m.recurring.Advance(ctx, tx, kind, id, next, &remaining); err != nil {
				return err
			}
		} else if err := m.recurring.Advance(ctx, tx, kind, id, next, nil); err != nil {
			return err
		}
		return m.audit.Log(ctx, tx, nil, "recurring.materialize", string(kind), entry.ID, map[string]string{
			"recurring_id": id,
		})
	})
	if err != nil {
		return models.Entry{}, err
	}
	broadcast(m.hub, websocket.UpdateLedger, changes)
	return entry, nil
}
