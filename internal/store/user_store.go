package store

import (
	"context"

	"finance/internal/models"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, password_hash, family_id, created_at`

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, family_id)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.FamilyID)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getBy(ctx, "email", email)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getBy(ctx, "username", username)
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	return s.getBy(ctx, "id", userID)
}

func (s *UserStore) getBy(ctx context.Context, column, value string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	if err != nil {
		return models.User{}, err
	}
	return row, nil
}

// SetFamily joins the user to a family; nil leaves any family.
func (s *UserStore) SetFamily(ctx context.Context, tx Execer, userID string, familyID *string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE users SET family_id = $1 WHERE id = $2`, familyID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
