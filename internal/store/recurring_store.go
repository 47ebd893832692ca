package store

import (
	"context"
	"fmt"
	"time"

	"finance/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type RecurringStore struct {
	db DB
}

func NewRecurringStore(db DB) *RecurringStore {
	return &RecurringStore{db: db}
}

type recurringRow struct {
	Kind                 string          `db:"kind"`
	ID                   string          `db:"id"`
	AccountID            *string         `db:"account_id"`
	CreditorID           *string         `db:"creditor_id"`
	DebtorID             *string         `db:"debtor_id"`
	Amount               decimal.Decimal `db:"amount"`
	Description          string          `db:"description"`
	PersonID             *string         `db:"person_id"`
	Tags                 pq.StringArray  `db:"tags"`
	NextTransactionAt    time.Time       `db:"next_transaction_at"`
	Frequency            string          `db:"frequency"`
	RemainingRecurrences *int            `db:"remaining_recurrences"`
}

func (r recurringRow) toRecurring() models.Recurring {
	return models.Recurring{
		ID:                   r.ID,
		Kind:                 models.EntryKind(r.Kind),
		AccountID:            derefStringPtr(r.AccountID),
		CreditorID:           derefStringPtr(r.CreditorID),
		DebtorID:             derefStringPtr(r.DebtorID),
		Amount:               r.Amount,
		Description:          r.Description,
		PersonID:             r.PersonID,
		Tags:                 nonNilTags([]string(r.Tags)),
		NextTransactionAt:    r.NextTransactionAt,
		Frequency:            models.Frequency(r.Frequency),
		RemainingRecurrences: r.RemainingRecurrences,
	}
}

func recurringTable(kind models.EntryKind) (string, error) {
	switch kind {
	case models.KindIncome:
		return "recurring_incomes", nil
	case models.KindExpense:
		return "recurring_expenses", nil
	case models.KindTransfer:
		return "recurring_transfers", nil
	}
	return "", models.ErrUnknownKind
}

const recurringCommonColumns = `amount, description, person_id, tags, next_transaction_at, frequency, remaining_recurrences`

func recurringSelect(kind models.EntryKind) (string, error) {
	table, err := recurringTable(kind)
	if err != nil {
		return "", err
	}
	if kind == models.KindTransfer {
		return `
		SELECT 'transfer' AS kind, id, NULL::text AS account_id, creditor_id, debtor_id, ` + recurringCommonColumns + `
		FROM recurring_transfers`, nil
	}
	return fmt.Sprintf(`
		SELECT '%s' AS kind, id, account_id, NULL::text AS creditor_id, NULL::text AS debtor_id, %s
		FROM %s`, kind, recurringCommonColumns, table), nil
}

func (s *RecurringStore) Create(ctx context.Context, tx Execer, rec models.Recurring) error {
	table, err := recurringTable(rec.Kind)
	if err != nil {
		return err
	}
	tags := pq.Array(nonNilTags(rec.Tags))
	if rec.Kind == models.KindTransfer {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recurring_transfers (id, creditor_id, debtor_id, `+recurringCommonColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rec.ID, rec.CreditorID, rec.DebtorID, rec.Amount, rec.Description, rec.PersonID, tags,
			rec.NextTransactionAt, string(rec.Frequency), rec.RemainingRecurrences)
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+table+` (id, account_id, `+recurringCommonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.AccountID, rec.Amount, rec.Description, rec.PersonID, tags,
		rec.NextTransactionAt, string(rec.Frequency), rec.RemainingRecurrences)
	return err
}

func (s *RecurringStore) Update(ctx context.Context, tx Execer, rec models.Recurring) (int64, error) {
	table, err := recurringTable(rec.Kind)
	if err != nil {
		return 0, err
	}
	tags := pq.Array(nonNilTags(rec.Tags))
	var query string
	var args []any
	if rec.Kind == models.KindTransfer {
		query = `
			UPDATE recurring_transfers
			SET creditor_id = $1, debtor_id = $2, amount = $3, description = $4, person_id = $5, tags = $6,
				next_transaction_at = $7, frequency = $8, remaining_recurrences = $9
			WHERE id = $10
		`
		args = []any{rec.CreditorID, rec.DebtorID, rec.Amount, rec.Description, rec.PersonID, tags,
			rec.NextTransactionAt, string(rec.Frequency), rec.RemainingRecurrences, rec.ID}
	} else {
		query = `
			UPDATE ` + table + `
			SET account_id = $1, amount = $2, description = $3, person_id = $4, tags = $5,
				next_transaction_at = $6, frequency = $7, remaining_recurrences = $8
			WHERE id = $9
		`
		args = []any{rec.AccountID, rec.Amount, rec.Description, rec.PersonID, tags,
			rec.NextTransactionAt, string(rec.Frequency), rec.RemainingRecurrences, rec.ID}
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RecurringStore) Delete(ctx context.Context, tx Execer, kind models.EntryKind, id string) (int64, error) {
	table, err := recurringTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RecurringStore) GetByID(ctx context.Context, kind models.EntryKind, id string) (models.Recurring, error) {
	return s.get(ctx, s.db, kind, id, "")
}

func (s *RecurringStore) GetForUpdate(ctx context.Context, tx Getter, kind models.EntryKind, id string) (models.Recurring, error) {
	return s.get(ctx, tx, kind, id, " FOR UPDATE")
}

func (s *RecurringStore) get(ctx context.Context, q Getter, kind models.EntryKind, id, suffix string) (models.Recurring, error) {
	selectSQL, err := recurringSelect(kind)
	if err != nil {
		return models.Recurring{}, err
	}
	var row recurringRow
	if err := q.GetContext(ctx, &row, selectSQL+`
		WHERE id = $1`+suffix, id); err != nil {
		return models.Recurring{}, err
	}
	return row.toRecurring(), nil
}

// ListDue returns definitions of one kind whose next occurrence is at or
// before now and that still have occurrences left.
func (s *RecurringStore) ListDue(ctx context.Context, kind models.EntryKind, now time.Time) ([]models.Recurring, error) {
	selectSQL, err := recurringSelect(kind)
	if err != nil {
		return nil, err
	}
	var rows []recurringRow
	err = s.db.SelectContext(ctx, &rows, selectSQL+`
		WHERE next_transaction_at <= $1
			AND (remaining_recurrences IS NULL OR remaining_recurrences > 0)
		ORDER BY next_transaction_at, id
	`, now)
	if err != nil {
		return nil, err
	}
	return toRecurrings(rows), nil
}

// ListByAccount returns every definition of any kind touching the account.
func (s *RecurringStore) ListByAccount(ctx context.Context, accountID string) ([]models.Recurring, error) {
	var rows []recurringRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT 'income' AS kind, id, account_id, NULL::text AS creditor_id, NULL::text AS debtor_id, `+recurringCommonColumns+`
		FROM recurring_incomes WHERE account_id = $1
		UNION ALL
		SELECT 'expense', id, account_id, NULL::text, NULL::text, `+recurringCommonColumns+`
		FROM recurring_expenses WHERE account_id = $1
		UNION ALL
		SELECT 'transfer', id, NULL::text, creditor_id, debtor_id, `+recurringCommonColumns+`
		FROM recurring_transfers WHERE creditor_id = $1 OR debtor_id = $1
		ORDER BY next_transaction_at, id
	`, accountID)
	if err != nil {
		return nil, err
	}
	return toRecurrings(rows), nil
}

// Advance moves a definition to its next occurrence after one was materialized.
func (s *RecurringStore) Advance(ctx context.Context, tx Execer, kind models.EntryKind, id string, next time.Time, remaining *int) error {
	table, err := recurringTable(kind)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE `+table+`
		SET next_transaction_at = $1, remaining_recurrences = $2
		WHERE id = $3
	`, next, remaining, id)
	return err
}

func (s *RecurringStore) DeleteByAccount(ctx context.Context, tx Execer, accountID string) error {
	for _, query := range []string{
		`DELETE FROM recurring_incomes WHERE account_id = $1`,
		`DELETE FROM recurring_expenses WHERE account_id = $1`,
		`DELETE FROM recurring_transfers WHERE creditor_id = $1 OR debtor_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, accountID); err != nil {
			return err
		}
	}
	return nil
}

func toRecurrings(rows []recurringRow) []models.Recurring {
	out := make([]models.Recurring, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecurring())
	}
	return out
}
