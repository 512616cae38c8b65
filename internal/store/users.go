package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

const userColumns = `id, name, email, password_hash, phone, role, created_at, updated_at`

// CreateUser inserts u. A taken email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, phone, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, u, query, u.Name, u.Email, u.PasswordHash, u.Phone, u.Role)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	return users, err
}

// UpdateUser writes profile fields and role. The password hash is left alone.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, phone = $3, role = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING created_at, updated_at`

	err := s.db.GetContext(ctx, u, query, u.Name, u.Email, u.Phone, u.Role, u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %d: %w", u.ID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users")
	return n, err
}
