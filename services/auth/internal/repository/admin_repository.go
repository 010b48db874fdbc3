package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

type adminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) AdminRepository {
	return &adminRepository{pool: pool}
}

const adminCols = `id, email, name, role, created_at`

func (r *adminRepository) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return r.findOne(ctx, `SELECT `+adminCols+` FROM admins WHERE email = $1`, email)
}

func (r *adminRepository) FindByID(ctx context.Context, id string) (*domain.Admin, error) {
	return r.findOne(ctx, `SELECT `+adminCols+` FROM admins WHERE id = $1`, id)
}

func (r *adminRepository) Ensure(ctx context.Context, a *domain.Admin) (*domain.Admin, error) {
	const q = `
		INSERT INTO admins (` + adminCols + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := r.pool.Exec(ctx, q, a.ID, a.Email, a.Name, a.Role, a.CreatedAt); err != nil {
		return nil, err
	}
	stored, err := r.findOne(ctx, `SELECT `+adminCols+` FROM admins WHERE email = $1`, a.Email)
	if err == nil && stored == nil {
		return nil, errors.New("admin vanished after insert")
	}
	return stored, err
}

func (r *adminRepository) findOne(ctx context.Context, q string, arg string) (*domain.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var a domain.Admin
	err := r.pool.QueryRow(ctx, q, arg).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
