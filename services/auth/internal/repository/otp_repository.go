package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

func (r *otpRepository) Upsert(ctx context.Context, code *domain.OneTimeCode) error {
	const q = `
		INSERT INTO one_time_codes (email, code_hash, purpose, attempts, expires_at, created_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    purpose = EXCLUDED.purpose,
		    attempts = 0,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, code.Email, code.CodeHash, string(code.Purpose), code.ExpiresAt, code.CreatedAt)
	return err
}

func (r *otpRepository) Get(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	const q = `
		SELECT email, code_hash, purpose, attempts, expires_at, created_at
		FROM one_time_codes
		WHERE email = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		c       domain.OneTimeCode
		purpose string
	)
	err := r.pool.QueryRow(ctx, q, email).Scan(&c.Email, &c.CodeHash, &purpose, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Purpose = domain.OTPPurpose(purpose)
	return &c, nil
}

func (r *otpRepository) Delete(ctx context.Context, email, codeHash string) (bool, error) {
	const q = `DELETE FROM one_time_codes WHERE email = $1 AND code_hash = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, email, codeHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *otpRepository) RecordFailure(ctx context.Context, email, codeHash string) (int, error) {
	const q = `
		UPDATE one_time_codes
		SET attempts = attempts + 1
		WHERE email = $1 AND code_hash = $2
		RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, email, codeHash).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}
