package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// ClientRepo reads the `clients` table backing the mobile application.
type ClientRepo struct{ DB *sql.DB }

func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{DB: db} }

// GetByEmail fetches a client by normalised email.
func (r *ClientRepo) GetByEmail(ctx context.Context, email string) (model.Client, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at FROM clients WHERE email=? LIMIT 1",
		normalizeEmail(email))
	return scanClient(row)
}

// GetByID fetches a client by id.
func (r *ClientRepo) GetByID(ctx context.Context, id uint64) (model.Client, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at FROM clients WHERE id=? LIMIT 1", id)
	return scanClient(row)
}

func scanClient(row *sql.Row) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Client{}, ErrNotFound
	}
	return c, err
}
