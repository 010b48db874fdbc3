package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

const pgUniqueViolation = "23505"

// NewPostgresStore backs every table with the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Farmers:   NewFarmerRepository(pool),
		Admins:    NewAdminRepository(pool),
		OTPs:      NewOTPRepository(pool),
		Sessions:  NewSessionRepository(pool),
		Passwords: NewPasswordRepository(pool),
	}
}

type farmerRepository struct {
	pool *pgxpool.Pool
}

func NewFarmerRepository(pool *pgxpool.Pool) FarmerRepository {
	return &farmerRepository{pool: pool}
}

const farmerCols = `id, email, name, phone, aadhaar_id, pan_number, farmer_id, farm_name,
	location, land_size, land_unit, farming_type, primary_crops, irrigation_type,
	sustainable_practices, interested_projects, bank_details, verified, estimated_income,
	created_at, updated_at`

func scanFarmer(row pgx.Row) (*domain.Farmer, error) {
	var f domain.Farmer
	err := row.Scan(
		&f.ID, &f.Email, &f.Name, &f.Phone, &f.AadhaarID, &f.PANNumber, &f.FarmerID, &f.FarmName,
		&f.Location, &f.LandSize, &f.LandUnit, &f.FarmingType, &f.PrimaryCrops, &f.IrrigationType,
		&f.SustainablePractices, &f.InterestedProjects, &f.BankDetails, &f.Verified, &f.EstimatedIncome,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *farmerRepository) Create(ctx context.Context, f *domain.Farmer) error {
	const q = `
		INSERT INTO farmers (` + farmerCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		f.ID, f.Email, f.Name, f.Phone, f.AadhaarID, f.PANNumber, f.FarmerID, f.FarmName,
		f.Location, f.LandSize, f.LandUnit, f.FarmingType, nonNil(f.PrimaryCrops), f.IrrigationType,
		nonNil(f.SustainablePractices), nonNil(f.InterestedProjects), f.BankDetails, f.Verified, f.EstimatedIncome,
		f.CreatedAt, f.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.ErrEmailExists
	}
	return err
}

func (r *farmerRepository) FindByEmail(ctx context.Context, email string) (*domain.Farmer, error) {
	const q = `SELECT ` + farmerCols + ` FROM farmers WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	f, err := scanFarmer(r.pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (r *farmerRepository) FindByID(ctx context.Context, id string) (*domain.Farmer, error) {
	const q = `SELECT ` + farmerCols + ` FROM farmers WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	f, err := scanFarmer(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// Update holds a row lock between read and write so concurrent updates of
// the same farmer apply one after the other.
func (r *farmerRepository) Update(ctx context.Context, id string, mutate func(*domain.Farmer) error) (*domain.Farmer, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin farmer update: %w", err)
	}
	defer tx.Rollback(ctx)

	f, err := scanFarmer(tx.QueryRow(ctx, `SELECT `+farmerCols+` FROM farmers WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(f); err != nil {
		return nil, err
	}

	const q = `
		UPDATE farmers
		SET name = $2, phone = $3, aadhaar_id = $4, pan_number = $5, farmer_id = $6, farm_name = $7,
		    location = $8, land_size = $9, land_unit = $10, farming_type = $11, primary_crops = $12,
		    irrigation_type = $13, sustainable_practices = $14, interested_projects = $15,
		    bank_details = $16, verified = $17, estimated_income = $18, updated_at = $19
		WHERE id = $1
		RETURNING ` + farmerCols

	updated, err := scanFarmer(tx.QueryRow(ctx, q,
		id, f.Name, f.Phone, f.AadhaarID, f.PANNumber, f.FarmerID, f.FarmName,
		f.Location, f.LandSize, f.LandUnit, f.FarmingType, nonNil(f.PrimaryCrops),
		f.IrrigationType, nonNil(f.SustainablePractices), nonNil(f.InterestedProjects),
		f.BankDetails, f.Verified, f.EstimatedIncome, f.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit farmer update: %w", err)
	}
	return updated, nil
}

func (r *farmerRepository) List(ctx context.Context, limit, offset int) ([]domain.Farmer, int, error) {
	const q = `
		SELECT ` + farmerCols + `
		FROM farmers
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM farmers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	farmers := make([]domain.Farmer, 0, limit)
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, 0, err
		}
		farmers = append(farmers, *f)
	}
	return farmers, total, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
