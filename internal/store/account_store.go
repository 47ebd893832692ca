package store

import (
	"context"
	"fmt"

	"finance/internal/models"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `a.id, a.user_id, a.name, a.type, a.initial_balance, a.initial_date, a.current_balance, a.data, a.created_at, a.updated_at`

// visibleTo matches accounts owned by the user bound to placeholder n or by
// a member of that user's family.
func visibleTo(n int) string {
	return fmt.Sprintf(`(a.user_id = $%[1]d OR a.user_id IN (
			SELECT m.id
			FROM users m
			JOIN users u ON u.family_id = m.family_id
			WHERE u.id = $%[1]d AND u.family_id IS NOT NULL
		))`, n)
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, type, initial_balance, initial_date, current_balance, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, account.ID, account.UserID, account.Name, string(account.Type), account.InitialBalance,
		account.InitialDate, account.CurrentBalance, account.Data)
	return err
}

func (s *AccountStore) Update(ctx context.Context, tx Execer, account models.Account) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET name = $1, type = $2, initial_balance = $3, initial_date = $4, data = $5, updated_at = NOW()
		WHERE id = $6
	`, account.Name, string(account.Type), account.InitialBalance, account.InitialDate, account.Data, account.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) Delete(ctx context.Context, tx Execer, accountID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.id = $1
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetVisible(ctx context.Context, accountID, userID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.id = $1 AND `+visibleTo(2), accountID, userID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListVisible(ctx context.Context, userID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE `+visibleTo(1)+`
		ORDER BY a.name, a.id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) ListAll(ctx context.Context) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts a
		ORDER BY a.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) AdjustBalance(ctx context.Context, tx Execer, accountID string, delta decimal.Decimal) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = current_balance + $1, updated_at = NOW()
		WHERE id = $2
	`, delta, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) SetCurrentBalance(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}
