package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/carbonmrv/pkg/auth"
	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
)

const sessionKeyBytes = 32

type SessionService interface {
	Mint(ctx context.Context, userID string, userType domain.UserType) (token string, expiresAt time.Time, err error)
	Resolve(ctx context.Context, token string) (*domain.AuthUser, error)
	Invalidate(ctx context.Context, token string) error
}

type sessionService struct {
	store    *repository.Store
	eventBus events.Publisher
	clock    Clock
	ttl      time.Duration
	codec    tokenCodec
}

func NewSessionService(store *repository.Store, eventBus events.Publisher, clock Clock, cfg *config.Config) SessionService {
	var codec tokenCodec = opaqueCodec{}
	if cfg.Auth.SessionTokenFormat == config.TokenFormatJWT {
		codec = jwtCodec{secret: cfg.Auth.JWTSecret}
	}
	return &sessionService{
		store:    store,
		eventBus: eventBus,
		clock:    clock,
		ttl:      cfg.Auth.SessionTTL,
		codec:    codec,
	}
}

func (s *sessionService) Mint(ctx context.Context, userID string, userType domain.UserType) (string, time.Time, error) {
	key, err := auth.GenerateToken(sessionKeyBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session key: %w", err)
	}

	now := s.clock.Now()
	sess := &domain.Session{
		ID:        hashKey(key),
		UserID:    userID,
		UserType:  userType,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		Active:    true,
	}

	token, err := s.codec.encode(key, sess)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode session token: %w", err)
	}

	if err := s.store.Sessions.Create(ctx, sess); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}

	sessionsMintedTotal.WithLabelValues(string(userType)).Inc()
	publish(ctx, s.eventBus, events.SessionCreated, events.SessionEvent{
		UserID:   userID,
		UserType: string(userType),
		At:       now,
	})

	return token, sess.ExpiresAt, nil
}

// Resolve reloads the bound user on every call, so profile changes are
// visible to the same token immediately.
func (s *sessionService) Resolve(ctx context.Context, token string) (*domain.AuthUser, error) {
	sess, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.Valid(s.clock.Now()) {
		return nil, domain.ErrUnauthenticated
	}

	switch sess.UserType {
	case domain.UserTypeFarmer:
		f, err := s.store.Farmers.FindByID(ctx, sess.UserID)
		if err != nil {
			return nil, fmt.Errorf("load farmer: %w", err)
		}
		if f == nil {
			logger.WarnContext(ctx, "Session bound to missing farmer", "user_id", sess.UserID)
			return nil, domain.ErrUnauthenticated
		}
		return domain.FarmerUser(f), nil

	case domain.UserTypeAdmin:
		a, err := s.store.Admins.FindByID(ctx, sess.UserID)
		if err != nil {
			return nil, fmt.Errorf("load admin: %w", err)
		}
		if a == nil {
			logger.WarnContext(ctx, "Session bound to missing admin", "user_id", sess.UserID)
			return nil, domain.ErrUnauthenticated
		}
		return domain.AdminUser(a), nil
	}

	return nil, domain.ErrUnauthenticated
}

func (s *sessionService) Invalidate(ctx context.Context, token string) error {
	sess, err := s.lookup(ctx, token)
	if errors.Is(err, domain.ErrUnauthenticated) {
		return nil
	}
	if err != nil {
		return err
	}
	if sess == nil || !sess.Active {
		return nil
	}

	if err := s.store.Sessions.Deactivate(ctx, sess.ID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	publish(ctx, s.eventBus, events.SessionRevoked, events.SessionEvent{
		UserID:   sess.UserID,
		UserType: string(sess.UserType),
		At:       s.clock.Now(),
	})
	return nil
}

// lookup returns ErrUnauthenticated for tokens that cannot be decoded, and
// (nil, nil) for well-formed tokens with no session behind them.
func (s *sessionService) lookup(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	key, err := s.codec.decode(token)
	if err != nil {
		logger.DebugContext(ctx, "Rejected session token", "error", err)
		return nil, domain.ErrUnauthenticated
	}

	sess, err := s.store.Sessions.Get(ctx, hashKey(key))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// tokenCodec maps the opaque session key to the bearer string handed to
// clients and back.
type tokenCodec interface {
	encode(key string, sess *domain.Session) (string, error)
	decode(token string) (string, error)
}

type opaqueCodec struct{}

func (opaqueCodec) encode(key string, _ *domain.Session) (string, error) { return key, nil }
func (opaqueCodec) decode(token string) (string, error)                 { return token, nil }

// jwtCodec signs the session key into an HS256 token. Revocation still goes
// through the session table.
type jwtCodec struct {
	secret string
}

func (c jwtCodec) encode(key string, sess *domain.Session) (string, error) {
	return auth.NewSessionToken(sess.UserID, string(sess.UserType), key, c.secret, sess.IssuedAt, sess.ExpiresAt.Sub(sess.IssuedAt))
}

func (c jwtCodec) decode(token string) (string, error) {
	claims, err := auth.Parse(token, c.secret)
	if err != nil {
		return "", err
	}
	return claims.SessionID, nil
}
