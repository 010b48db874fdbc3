package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
)

type ProfileService interface {
	Update(ctx context.Context, token string, upd *domain.ProfileUpdate) (*domain.Farmer, error)
}

type profileService struct {
	store    *repository.Store
	sessions SessionService
	eventBus events.Publisher
	clock    Clock
}

func NewProfileService(store *repository.Store, sessions SessionService, eventBus events.Publisher, clock Clock) ProfileService {
	return &profileService{
		store:    store,
		sessions: sessions,
		eventBus: eventBus,
		clock:    clock,
	}
}

func (s *profileService) Update(ctx context.Context, token string, upd *domain.ProfileUpdate) (*domain.Farmer, error) {
	user, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.Type != domain.UserTypeFarmer || user.Farmer == nil {
		return nil, domain.ErrWrongUserType
	}

	upd.Normalize()
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	var changed []string
	now := s.clock.Now()
	farmer, err := s.store.Farmers.Update(ctx, user.Farmer.ID, func(f *domain.Farmer) error {
		changed = upd.Apply(f, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update farmer: %w", err)
	}
	if farmer == nil {
		return nil, domain.ErrFarmerNotFound
	}

	logger.InfoContext(ctx, "Farmer profile updated", "farmer_id", farmer.ID, "fields", changed, "estimated_income", farmer.EstimatedIncome)
	publish(ctx, s.eventBus, events.FarmerProfileUpdated, events.FarmerProfileUpdatedEvent{
		FarmerID:        farmer.ID,
		Changes:         changed,
		EstimatedIncome: farmer.EstimatedIncome,
		UpdatedAt:       now,
	})

	return farmer, nil
}
