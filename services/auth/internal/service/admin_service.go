package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AdminService interface {
	EnsureBootstrapAdmin(ctx context.Context) (*domain.Admin, error)
	Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AuthResult, error)
	ListFarmers(ctx context.Context, limit, offset int) ([]domain.Farmer, int, error)
	UpdateFarmerStatus(ctx context.Context, adminID string, req *domain.FarmerStatusRequest) (*domain.Farmer, error)
}

type adminService struct {
	store    *repository.Store
	sessions SessionService
	eventBus events.Publisher
	clock    Clock
	config   config.AuthConfig
}

func NewAdminService(
	store *repository.Store,
	sessions SessionService,
	eventBus events.Publisher,
	clock Clock,
	cfg *config.Config,
) AdminService {
	return &adminService{
		store:    store,
		sessions: sessions,
		eventBus: eventBus,
		clock:    clock,
		config:   cfg.Auth,
	}
}

// EnsureBootstrapAdmin makes sure the configured admin has a record. The id
// is derived from the email, so a wiped store recreates the same admin.
func (s *adminService) EnsureBootstrapAdmin(ctx context.Context) (*domain.Admin, error) {
	email := utils.NormalizeEmail(s.config.AdminEmail)
	role := s.config.AdminRole
	if role == "" {
		role = domain.RoleAdmin
	}

	admin, err := s.store.Admins.Ensure(ctx, &domain.Admin{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("carbonmrv:admin:"+email)).String(),
		Email:     email,
		Name:      s.config.AdminName,
		Role:      role,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure admin: %w", err)
	}
	return admin, nil
}

func (s *adminService) Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Both checks run every time so timing does not reveal which one failed.
	emailOK := constantTimeEqual(req.Email, utils.NormalizeEmail(s.config.AdminEmail))
	passwordOK := s.checkPassword(ctx, req.Password)
	if !emailOK || !passwordOK {
		adminLoginsTotal.WithLabelValues("invalid").Inc()
		logger.WarnContext(ctx, "Admin login rejected", "email", req.Email)
		return nil, domain.ErrInvalidCredentials
	}

	admin, err := s.EnsureBootstrapAdmin(ctx)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.sessions.Mint(ctx, admin.ID, domain.UserTypeAdmin)
	if err != nil {
		return nil, err
	}

	adminLoginsTotal.WithLabelValues("success").Inc()
	logger.InfoContext(ctx, "Admin logged in", "admin_id", admin.ID)

	return &domain.AuthResult{
		User:      domain.AdminUser(admin),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *adminService) checkPassword(ctx context.Context, password string) bool {
	if s.config.AdminPasswordHash != "" {
		match, err := argon2id.ComparePasswordAndHash(password, s.config.AdminPasswordHash)
		if err != nil {
			logger.ErrorContext(ctx, "Invalid ADMIN_PASSWORD_HASH", "error", err)
			return false
		}
		return match
	}
	if s.config.AdminPassword == "" {
		return false
	}
	return constantTimeEqual(password, s.config.AdminPassword)
}

func (s *adminService) ListFarmers(ctx context.Context, limit, offset int) ([]domain.Farmer, int, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	farmers, total, err := s.store.Farmers.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list farmers: %w", err)
	}
	return farmers, total, nil
}

func (s *adminService) UpdateFarmerStatus(ctx context.Context, adminID string, req *domain.FarmerStatusRequest) (*domain.Farmer, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	farmer, err := s.store.Farmers.Update(ctx, req.FarmerID, func(f *domain.Farmer) error {
		f.Verified = req.Status == domain.FarmerStatusVerified
		f.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update farmer status: %w", err)
	}
	if farmer == nil {
		return nil, domain.ErrFarmerNotFound
	}

	logger.InfoContext(ctx, "Farmer status changed", "farmer_id", farmer.ID, "status", req.Status, "admin_id", adminID)
	publish(ctx, s.eventBus, events.FarmerStatusChanged, events.FarmerStatusChangedEvent{
		FarmerID:  farmer.ID,
		Status:    req.Status,
		Verified:  farmer.Verified,
		ChangedBy: adminID,
		UpdatedAt: now,
	})

	return farmer, nil
}

// constantTimeEqual hashes both sides first so that inputs of different
// lengths take the same time to compare.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
