package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"finance/internal/calendar"
	"finance/internal/models"

	"github.com/shopspring/decimal"
)

// BalanceStore holds end-of-period balance snapshots, unique per
// (account_id, recorded_until).
type BalanceStore struct {
	db DB
}

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Upsert records a snapshot, replacing any value already recorded for the day.
func (s *BalanceStore) Upsert(ctx context.Context, tx Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account_id, recorded_until, balance)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (account_id, recorded_until) DO UPDATE SET balance = EXCLUDED.balance
	`, accountID, calendar.Format(recordedUntil), balance)
	return err
}

// InsertIfMissing records a snapshot only when none exists for the day and
// reports whether a row was written.
func (s *BalanceStore) InsertIfMissing(ctx context.Context, tx Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account_id, recorded_until, balance)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (account_id, recorded_until) DO NOTHING
	`, accountID, calendar.Format(recordedUntil), balance)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ShiftFrom adds delta to every snapshot of the account recorded on or after
// day and reports how many rows moved.
func (s *BalanceStore) ShiftFrom(ctx context.Context, tx Execer, accountID string, day time.Time, delta decimal.Decimal) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE balances
		SET balance = balance + $3
		WHERE account_id = $1 AND recorded_until >= $2::date
	`, accountID, calendar.Format(day), delta)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestOnOrBefore returns the newest snapshot recorded on or before day, or
// nil when there is none.
func (s *BalanceStore) LatestOnOrBefore(ctx context.Context, accountID string, day time.Time) (*models.Balance, error) {
	var row models.Balance
	err := s.db.GetContext(ctx, &row, `
		SELECT account_id, recorded_until, balance
		FROM balances
		WHERE account_id = $1 AND recorded_until <= $2::date
		ORDER BY recorded_until DESC
		LIMIT 1
	`, accountID, calendar.Format(day))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	row.RecordedUntil = calendar.Day(row.RecordedUntil)
	return &row, nil
}

func (s *BalanceStore) ListByAccount(ctx context.Context, accountID string) ([]models.Balance, error) {
	var rows []models.Balance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT account_id, recorded_until, balance
		FROM balances
		WHERE account_id = $1
		ORDER BY recorded_until
	`, accountID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].RecordedUntil = calendar.Day(rows[i].RecordedUntil)
	}
	return rows, nil
}
