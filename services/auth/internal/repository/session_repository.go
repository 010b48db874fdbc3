package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

type sessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `
		INSERT INTO sessions (token, user_id, user_type, issued_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, s.ID, s.UserID, string(s.UserType), s.IssuedAt, s.ExpiresAt, s.Active)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	const q = `
		SELECT token, user_id, user_type, issued_at, expires_at, active
		FROM sessions
		WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		s        domain.Session
		userType string
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.UserID, &userType, &s.IssuedAt, &s.ExpiresAt, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.UserType = domain.UserType(userType)
	return &s, nil
}

func (r *sessionRepository) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET active = false WHERE token = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}
