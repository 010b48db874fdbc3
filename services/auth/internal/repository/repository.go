package repository

import (
	"context"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

// Lookups return (nil, nil) when the record does not exist.

type FarmerRepository interface {
	// Create fails with domain.ErrEmailExists when the email is taken.
	Create(ctx context.Context, f *domain.Farmer) error
	FindByEmail(ctx context.Context, email string) (*domain.Farmer, error)
	FindByID(ctx context.Context, id string) (*domain.Farmer, error)
	// Update loads the farmer, applies mutate and stores the result as one
	// atomic step. It returns (nil, nil) when id is unknown.
	Update(ctx context.Context, id string, mutate func(*domain.Farmer) error) (*domain.Farmer, error)
	List(ctx context.Context, limit, offset int) ([]domain.Farmer, int, error)
}

type AdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Admin, error)
	FindByID(ctx context.Context, id string) (*domain.Admin, error)
	// Ensure inserts a unless an admin with the same email exists, and
	// returns the stored record either way.
	Ensure(ctx context.Context, a *domain.Admin) (*domain.Admin, error)
}

type OTPRepository interface {
	// Upsert replaces any outstanding code for the same email.
	Upsert(ctx context.Context, code *domain.OneTimeCode) error
	Get(ctx context.Context, email string) (*domain.OneTimeCode, error)
	// Delete removes the code for email only while it still carries codeHash,
	// and reports whether it did.
	Delete(ctx context.Context, email, codeHash string) (bool, error)
	// RecordFailure bumps the failed-attempt counter of the code for email
	// while it still carries codeHash, and returns the new count. It returns
	// 0 when that code is gone.
	RecordFailure(ctx context.Context, email, codeHash string) (int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Deactivate is a no-op for unknown ids.
	Deactivate(ctx context.Context, id string) error
}

// PasswordRepository is kept apart from one-time codes; entries never expire.
type PasswordRepository interface {
	Set(ctx context.Context, userType domain.UserType, userID, hash string) error
	// Get returns "" when no password is on file.
	Get(ctx context.Context, userType domain.UserType, userID string) (string, error)
}

// Store bundles every table the auth service needs.
type Store struct {
	Farmers   FarmerRepository
	Admins    AdminRepository
	OTPs      OTPRepository
	Sessions  SessionRepository
	Passwords PasswordRepository
}
