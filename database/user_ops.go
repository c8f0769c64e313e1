package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reel-scout/models"
)

// CreateUser inserts an operator. An existing username is left untouched.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING RETURNING id`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.PasswordHash, user.Role).Scan(&user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, role FROM users WHERE username = $1`

	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
