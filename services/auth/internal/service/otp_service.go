package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/diagnosis/carbonmrv/pkg/auth"
	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
	"github.com/diagnosis/carbonmrv/services/auth/internal/mailer"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
)

type OTPService interface {
	Issue(ctx context.Context, req *domain.SendOTPRequest) (*domain.IssuedOTP, error)
	Verify(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.AuthResult, error)
}

type otpService struct {
	store    *repository.Store
	sessions SessionService
	mailer   mailer.Service
	eventBus events.Publisher
	clock    Clock
	ttl      time.Duration
	hashCost int
	locks    *keyedMutex
}

func NewOTPService(
	store *repository.Store,
	sessions SessionService,
	mailer mailer.Service,
	eventBus events.Publisher,
	clock Clock,
	cfg *config.Config,
) OTPService {
	return &otpService{
		store:    store,
		sessions: sessions,
		mailer:   mailer,
		eventBus: eventBus,
		clock:    clock,
		ttl:      cfg.Auth.OTPTTL,
		hashCost: cfg.Auth.OTPHashCost,
		locks:    newKeyedMutex(),
	}
}

func (s *otpService) Issue(ctx context.Context, req *domain.SendOTPRequest) (*domain.IssuedOTP, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		return nil, err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	now := s.clock.Now()
	record := &domain.OneTimeCode{
		Email:     req.Email,
		CodeHash:  string(codeHash),
		Purpose:   req.Purpose,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	unlock := s.locks.Lock(req.Email)
	err = s.store.OTPs.Upsert(ctx, record)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, req.Email, code, s.ttl); err != nil {
		logger.ErrorContext(ctx, "Failed to deliver OTP", "error", err, "email", req.Email)
		return nil, fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	otpIssuedTotal.WithLabelValues(string(req.Purpose)).Inc()
	logger.InfoContext(ctx, "OTP issued", "email", req.Email, "purpose", req.Purpose)

	return &domain.IssuedOTP{
		Email:     req.Email,
		Code:      code,
		Purpose:   req.Purpose,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *otpService) Verify(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.Email)
	defer unlock()

	if err := s.consume(ctx, req.Email, req.OTP); err != nil {
		return nil, err
	}

	farmer, err := s.findOrCreateFarmer(ctx, req.Email, req.RegistrationData)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.sessions.Mint(ctx, farmer.ID, domain.UserTypeFarmer)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "OTP verified", "email", req.Email, "farmer_id", farmer.ID)

	return &domain.AuthResult{
		User:      domain.FarmerUser(farmer),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// consume checks code against the stored hash and deletes the record on
// success, when it is found expired, or once it has taken MaxOTPAttempts
// wrong guesses. The caller holds the email lock.
func (s *otpService) consume(ctx context.Context, email, code string) error {
	record, err := s.store.OTPs.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}
	if record == nil {
		otpVerificationsTotal.WithLabelValues("not_found").Inc()
		return domain.ErrOTPNotFound
	}

	if record.Expired(s.clock.Now()) {
		s.burn(ctx, email, record.CodeHash)
		otpVerificationsTotal.WithLabelValues("expired").Inc()
		return domain.ErrOTPExpired
	}

	if record.Attempts >= domain.MaxOTPAttempts {
		s.burn(ctx, email, record.CodeHash)
		otpVerificationsTotal.WithLabelValues("locked").Inc()
		return domain.ErrOTPNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)); err != nil {
		otpVerificationsTotal.WithLabelValues("mismatch").Inc()
		attempts, err := s.store.OTPs.RecordFailure(ctx, email, record.CodeHash)
		if err != nil {
			return fmt.Errorf("record otp failure: %w", err)
		}
		if attempts >= domain.MaxOTPAttempts {
			logger.WarnContext(ctx, "OTP burned after too many failed attempts", "email", email, "attempts", attempts)
			s.burn(ctx, email, record.CodeHash)
		}
		return domain.ErrOTPMismatch
	}

	// Another instance may have consumed or replaced the code since Get.
	deleted, err := s.store.OTPs.Delete(ctx, email, record.CodeHash)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !deleted {
		otpVerificationsTotal.WithLabelValues("not_found").Inc()
		return domain.ErrOTPNotFound
	}

	otpVerificationsTotal.WithLabelValues("success").Inc()
	return nil
}

// burn deletes a code that may no longer be used.
func (s *otpService) burn(ctx context.Context, email, codeHash string) {
	if _, err := s.store.OTPs.Delete(ctx, email, codeHash); err != nil {
		logger.WarnContext(ctx, "Failed to delete OTP", "error", err, "email", email)
	}
}

func (s *otpService) findOrCreateFarmer(ctx context.Context, email string, reg *domain.RegistrationData) (*domain.Farmer, error) {
	existing, err := s.store.Farmers.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find farmer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	farmer := domain.NewFarmer(uuid.NewString(), email, reg, s.clock.Now())
	err = s.store.Farmers.Create(ctx, farmer)
	if errors.Is(err, domain.ErrEmailExists) {
		// Created concurrently by another instance.
		existing, err := s.store.Farmers.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("find farmer: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("farmer %s reported as existing but not found", email)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create farmer: %w", err)
	}

	logger.InfoContext(ctx, "Farmer created", "farmer_id", farmer.ID, "estimated_income", farmer.EstimatedIncome)
	publish(ctx, s.eventBus, events.FarmerRegistered, events.FarmerRegisteredEvent{
		FarmerID:        farmer.ID,
		Email:           farmer.Email,
		Method:          "otp",
		EstimatedIncome: farmer.EstimatedIncome,
		CreatedAt:       farmer.CreatedAt,
	})

	return farmer, nil
}
