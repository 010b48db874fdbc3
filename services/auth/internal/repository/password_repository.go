package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

type passwordRepository struct {
	pool *pgxpool.Pool
}

func NewPasswordRepository(pool *pgxpool.Pool) PasswordRepository {
	return &passwordRepository{pool: pool}
}

func (r *passwordRepository) Set(ctx context.Context, userType domain.UserType, userID, hash string) error {
	const q = `
		INSERT INTO password_credentials (user_type, user_id, hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_type, user_id) DO UPDATE
		SET hash = EXCLUDED.hash, updated_at = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, string(userType), userID, hash)
	return err
}

func (r *passwordRepository) Get(ctx context.Context, userType domain.UserType, userID string) (string, error) {
	const q = `SELECT hash FROM password_credentials WHERE user_type = $1 AND user_id = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var hash string
	err := r.pool.QueryRow(ctx, q, string(userType), userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}
