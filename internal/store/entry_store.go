package store

import (
	"context"
	"fmt"
	"time"

	"finance/internal/calendar"
	"finance/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// EntryStore persists incomes, expenses and transfers. Each kind lives in its
// own table; reads project them onto a single row shape.
type EntryStore struct {
	db DB
}

func NewEntryStore(db DB) *EntryStore {
	return &EntryStore{db: db}
}

const (
	CategoryIncome      = "income"
	CategoryExpense     = "expense"
	CategoryTransferIn  = "transfer_in"
	CategoryTransferOut = "transfer_out"
)

type entryRow struct {
	Kind         string          `db:"kind"`
	ID           string          `db:"id"`
	AccountID    *string         `db:"account_id"`
	CreditorID   *string         `db:"creditor_id"`
	DebtorID     *string         `db:"debtor_id"`
	Amount       decimal.Decimal `db:"amount"`
	TransactedAt time.Time       `db:"transacted_at"`
	Description  string          `db:"description"`
	PersonID     *string         `db:"person_id"`
	Tags         pq.StringArray  `db:"tags"`
}

func (r entryRow) toEntry() models.Entry {
	return models.Entry{
		ID:           r.ID,
		Kind:         models.EntryKind(r.Kind),
		AccountID:    derefStringPtr(r.AccountID),
		CreditorID:   derefStringPtr(r.CreditorID),
		DebtorID:     derefStringPtr(r.DebtorID),
		Amount:       r.Amount,
		TransactedAt: r.TransactedAt,
		Description:  r.Description,
		PersonID:     r.PersonID,
		Tags:         nonNilTags([]string(r.Tags)),
	}
}

// CategoryTotal is the sum of one flow category over one period (day or month).
type CategoryTotal struct {
	Period   time.Time       `db:"period"`
	Category string          `db:"category"`
	Total    decimal.Decimal `db:"total"`
}

// LedgerTotals are per-category sums for one account.
type LedgerTotals struct {
	Income      decimal.Decimal `db:"income"`
	Expense     decimal.Decimal `db:"expense"`
	TransferIn  decimal.Decimal `db:"transfer_in"`
	TransferOut decimal.Decimal `db:"transfer_out"`
}

func (t LedgerTotals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expense).Add(t.TransferIn).Sub(t.TransferOut)
}

func entryTable(kind models.EntryKind) (string, error) {
	switch kind {
	case models.KindIncome:
		return "incomes", nil
	case models.KindExpense:
		return "expenses", nil
	case models.KindTransfer:
		return "transfers", nil
	}
	return "", models.ErrUnknownKind
}

func entrySelect(kind models.EntryKind) (string, error) {
	table, err := entryTable(kind)
	if err != nil {
		return "", err
	}
	if kind == models.KindTransfer {
		return `
		SELECT 'transfer' AS kind, id, NULL::text AS account_id, creditor_id, debtor_id,
			amount, transacted_at, description, person_id, tags
		FROM transfers`, nil
	}
	return fmt.Sprintf(`
		SELECT '%s' AS kind, id, account_id, NULL::text AS creditor_id, NULL::text AS debtor_id,
			amount, transacted_at, description, person_id, tags
		FROM %s`, kind, table), nil
}

func (s *EntryStore) Create(ctx context.Context, tx Execer, entry models.Entry) error {
	table, err := entryTable(entry.Kind)
	if err != nil {
		return err
	}
	tags := pq.Array(nonNilTags(entry.Tags))
	if entry.Kind == models.KindTransfer {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transfers (id, creditor_id, debtor_id, amount, transacted_at, description, person_id, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.ID, entry.CreditorID, entry.DebtorID, entry.Amount, entry.TransactedAt,
			entry.Description, entry.PersonID, tags)
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+table+` (id, account_id, amount, transacted_at, description, person_id, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.AccountID, entry.Amount, entry.TransactedAt, entry.Description, entry.PersonID, tags)
	return err
}

func (s *EntryStore) Update(ctx context.Context, tx Execer, entry models.Entry) (int64, error) {
	table, err := entryTable(entry.Kind)
	if err != nil {
		return 0, err
	}
	tags := pq.Array(nonNilTags(entry.Tags))
	var query string
	var args []any
	if entry.Kind == models.KindTransfer {
		query = `
			UPDATE transfers
			SET creditor_id = $1, debtor_id = $2, amount = $3, transacted_at = $4,
				description = $5, person_id = $6, tags = $7
			WHERE id = $8
		`
		args = []any{entry.CreditorID, entry.DebtorID, entry.Amount, entry.TransactedAt,
			entry.Description, entry.PersonID, tags, entry.ID}
	} else {
		query = `
			UPDATE ` + table + `
			SET account_id = $1, amount = $2, transacted_at = $3, description = $4, person_id = $5, tags = $6
			WHERE id = $7
		`
		args = []any{entry.AccountID, entry.Amount, entry.TransactedAt, entry.Description,
			entry.PersonID, tags, entry.ID}
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EntryStore) Delete(ctx context.Context, tx Execer, kind models.EntryKind, entryID string) (int64, error) {
	table, err := entryTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, entryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EntryStore) GetByID(ctx context.Context, kind models.EntryKind, entryID string) (models.Entry, error) {
	return s.get(ctx, s.db, kind, entryID, "")
}

func (s *EntryStore) GetForUpdate(ctx context.Context, tx Getter, kind models.EntryKind, entryID string) (models.Entry, error) {
	return s.get(ctx, tx, kind, entryID, " FOR UPDATE")
}

func (s *EntryStore) get(ctx context.Context, q Getter, kind models.EntryKind, entryID, suffix string) (models.Entry, error) {
	selectSQL, err := entrySelect(kind)
	if err != nil {
		return models.Entry{}, err
	}
	var row entryRow
	if err := q.GetContext(ctx, &row, selectSQL+`
		WHERE id = $1`+suffix, entryID); err != nil {
		return models.Entry{}, err
	}
	return row.toEntry(), nil
}

// ListByAccount returns every entry touching the account, oldest first.
func (s *EntryStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT 'income' AS kind, id, account_id, NULL::text AS creditor_id, NULL::text AS debtor_id,
			amount, transacted_at, description, person_id, tags
		FROM incomes WHERE account_id = $1
		UNION ALL
		SELECT 'expense', id, account_id, NULL::text, NULL::text,
			amount, transacted_at, description, person_id, tags
		FROM expenses WHERE account_id = $1
		UNION ALL
		SELECT 'transfer', id, NULL::text, creditor_id, debtor_id,
			amount, transacted_at, description, person_id, tags
		FROM transfers WHERE creditor_id = $1 OR debtor_id = $1
		ORDER BY transacted_at, id
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// ListTransfersForAccount returns every transfer where the account is either side.
func (s *EntryStore) ListTransfersForAccount(ctx context.Context, q Selecter, accountID string) ([]models.Entry, error) {
	var rows []entryRow
	err := q.SelectContext(ctx, &rows, `
		SELECT 'transfer' AS kind, id, NULL::text AS account_id, creditor_id, debtor_id,
			amount, transacted_at, description, person_id, tags
		FROM transfers
		WHERE creditor_id = $1 OR debtor_id = $1
		ORDER BY id
	`, accountID)
	if err != nil {
		return nil, err
	}
	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// DeleteByAccount removes every entry touching the account.
func (s *EntryStore) DeleteByAccount(ctx context.Context, tx Execer, accountID string) error {
	for _, query := range []string{
		`DELETE FROM incomes WHERE account_id = $1`,
		`DELETE FROM expenses WHERE account_id = $1`,
		`DELETE FROM transfers WHERE creditor_id = $1 OR debtor_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, accountID); err != nil {
			return err
		}
	}
	return nil
}

const categoryFlows = `
			SELECT transacted_at, 'income' AS category, amount FROM incomes WHERE account_id = $1
			UNION ALL
			SELECT transacted_at, 'expense', amount FROM expenses WHERE account_id = $1
			UNION ALL
			SELECT transacted_at, 'transfer_in', amount FROM transfers WHERE creditor_id = $1
			UNION ALL
			SELECT transacted_at, 'transfer_out', amount FROM transfers WHERE debtor_id = $1`

// DailyTotals sums each category per calendar day in [from, to].
func (s *EntryStore) DailyTotals(ctx context.Context, accountID string, from, to time.Time) ([]CategoryTotal, error) {
	return s.periodTotals(ctx, `transacted_at::date`, accountID, from, to)
}

// MonthlyTotals sums each category per calendar month for days in [from, to].
func (s *EntryStore) MonthlyTotals(ctx context.Context, accountID string, from, to time.Time) ([]CategoryTotal, error) {
	return s.periodTotals(ctx, `date_trunc('month', transacted_at)::date`, accountID, from, to)
}

func (s *EntryStore) periodTotals(ctx context.Context, period, accountID string, from, to time.Time) ([]CategoryTotal, error) {
	var rows []CategoryTotal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+period+` AS period, category, SUM(amount) AS total
		FROM (`+categoryFlows+`
		) flows
		WHERE transacted_at::date BETWEEN $2::date AND $3::date
		GROUP BY 1, category
		ORDER BY 1, category
	`, accountID, calendar.Format(from), calendar.Format(to))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Totals sums each category over the account's whole ledger using q, so a
// caller holding the account lock reads inside its own transaction.
func (s *EntryStore) Totals(ctx context.Context, q Getter, accountID string) (LedgerTotals, error) {
	return s.totals(ctx, q, accountID, nil, nil)
}

// TotalsBetween sums each category for days in [from, to]. A nil bound is open.
func (s *EntryStore) TotalsBetween(ctx context.Context, accountID string, from, to *time.Time) (LedgerTotals, error) {
	return s.totals(ctx, s.db, accountID, from, to)
}

func (s *EntryStore) totals(ctx context.Context, q Getter, accountID string, from, to *time.Time) (LedgerTotals, error) {
	var totals LedgerTotals
	err := q.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE category = 'income'), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE category = 'expense'), 0) AS expense,
			COALESCE(SUM(amount) FILTER (WHERE category = 'transfer_in'), 0) AS transfer_in,
			COALESCE(SUM(amount) FILTER (WHERE category = 'transfer_out'), 0) AS transfer_out
		FROM (`+categoryFlows+`
		) flows
		WHERE ($2::date IS NULL OR transacted_at::date >= $2::date)
			AND ($3::date IS NULL OR transacted_at::date <= $3::date)
	`, accountID, dateArg(from), dateArg(to))
	if err != nil {
		return LedgerTotals{}, err
	}
	return totals, nil
}

// EarliestTransactedAt returns the oldest entry timestamp, or nil for an empty ledger.
func (s *EntryStore) EarliestTransactedAt(ctx context.Context, accountID string) (*time.Time, error) {
	var earliest *time.Time
	err := s.db.GetContext(ctx, &earliest, `
		SELECT MIN(transacted_at)
		FROM (`+categoryFlows+`
		) flows
	`, accountID)
	if err != nil {
		return nil, err
	}
	return earliest, nil
}

func dateArg(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := calendar.Format(*t)
	return &formatted
}
