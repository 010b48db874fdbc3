package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/diagnosis/carbonmrv/internal/utils"
	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
)

// FarmerAuthService is the password alternative to OTP sign-in.
type FarmerAuthService interface {
	Register(ctx context.Context, req *domain.FarmerRegisterRequest) (*domain.AuthResult, error)
	Login(ctx context.Context, req *domain.FarmerLoginRequest) (*domain.AuthResult, error)
}

type farmerAuthService struct {
	store       *repository.Store
	sessions    SessionService
	eventBus    events.Publisher
	clock       Clock
	minPassword int
	hashParams  *argon2id.Params
}

func NewFarmerAuthService(
	store *repository.Store,
	sessions SessionService,
	eventBus events.Publisher,
	clock Clock,
	cfg *config.Config,
) FarmerAuthService {
	return &farmerAuthService{
		store:       store,
		sessions:    sessions,
		eventBus:    eventBus,
		clock:       clock,
		minPassword: cfg.Auth.MinPasswordLength,
		hashParams:  argon2id.DefaultParams,
	}
}

func (s *farmerAuthService) Register(ctx context.Context, req *domain.FarmerRegisterRequest) (*domain.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Password) < s.minPassword {
		return nil, &domain.ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", s.minPassword)}
	}

	existing, err := s.store.Farmers.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("find farmer: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailExists
	}

	hash, err := argon2id.CreateHash(req.Password, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := req.Name
	if name == "" {
		name = utils.EmailLocalPart(req.Email)
	}
	farmer := domain.NewFarmer(uuid.NewString(), req.Email, &domain.RegistrationData{Name: name, Phone: req.Phone}, s.clock.Now())

	// The password is keyed by the fresh farmer ID, so writing it first
	// leaves no reachable account behind if either write fails.
	if err := s.store.Passwords.Set(ctx, domain.UserTypeFarmer, farmer.ID, hash); err != nil {
		return nil, fmt.Errorf("store password: %w", err)
	}
	if err := s.store.Farmers.Create(ctx, farmer); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create farmer: %w", err)
	}

	logger.InfoContext(ctx, "Farmer registered with password", "farmer_id", farmer.ID)
	publish(ctx, s.eventBus, events.FarmerRegistered, events.FarmerRegisteredEvent{
		FarmerID:        farmer.ID,
		Email:           farmer.Email,
		Method:          "password",
		EstimatedIncome: farmer.EstimatedIncome,
		CreatedAt:       farmer.CreatedAt,
	})

	return s.startSession(ctx, farmer)
}

// Login answers ErrInvalidCredentials for an unknown email, a farmer with no
// password and a wrong password alike.
func (s *farmerAuthService) Login(ctx context.Context, req *domain.FarmerLoginRequest) (*domain.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	farmer, err := s.store.Farmers.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("find farmer: %w", err)
	}
	if farmer == nil {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.store.Passwords.Get(ctx, domain.UserTypeFarmer, farmer.ID)
	if err != nil {
		return nil, fmt.Errorf("load password: %w", err)
	}
	if hash == "" {
		return nil, domain.ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, hash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !match {
		logger.WarnContext(ctx, "Farmer login rejected", "farmer_id", farmer.ID)
		return nil, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, farmer)
}

func (s *farmerAuthService) startSession(ctx context.Context, farmer *domain.Farmer) (*domain.AuthResult, error) {
	token, expiresAt, err := s.sessions.Mint(ctx, farmer.ID, domain.UserTypeFarmer)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{
		User:      domain.FarmerUser(farmer),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
