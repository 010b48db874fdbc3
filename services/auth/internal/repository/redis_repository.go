package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

const (
	otpKeyPrefix     = "carbonmrv:otp:"
	sessionKeyPrefix = "carbonmrv:session:"
)

// WithRedis moves the short-lived tables (codes and sessions) onto Redis and
// keeps everything else where it was. Keys expire with their records.
func (s *Store) WithRedis(client *redis.Client) *Store {
	next := *s
	next.OTPs = NewRedisOTPRepository(client)
	next.Sessions = NewRedisSessionRepository(client)
	return &next
}

type otpRecord struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	Purpose   string    `json:"purpose"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// deleteIfHash removes KEYS[1] only when its code_hash equals ARGV[1].
var deleteIfHash = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local ok, rec = pcall(cjson.decode, v)
if ok and rec.code_hash == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// recordFailure increments attempts on KEYS[1] when its code_hash equals
// ARGV[1], keeping the TTL, and returns the new count or 0.
var recordFailure = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local ok, rec = pcall(cjson.decode, v)
if not ok or rec.code_hash ~= ARGV[1] then return 0 end
rec.attempts = (tonumber(rec.attempts) or 0) + 1
redis.call('SET', KEYS[1], cjson.encode(rec), 'KEEPTTL')
return rec.attempts
`)

type redisOTPRepository struct {
	client *redis.Client
}

func NewRedisOTPRepository(client *redis.Client) OTPRepository {
	return &redisOTPRepository{client: client}
}

func (r *redisOTPRepository) Upsert(ctx context.Context, code *domain.OneTimeCode) error {
	payload, err := json.Marshal(otpRecord{
		Email:     code.Email,
		CodeHash:  code.CodeHash,
		Purpose:   string(code.Purpose),
		ExpiresAt: code.ExpiresAt,
		CreatedAt: code.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.client.Set(ctx, otpKeyPrefix+code.Email, payload, keyTTL(code.ExpiresAt)).Err()
}

func (r *redisOTPRepository) Get(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, otpKeyPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode otp: %w", err)
	}
	return &domain.OneTimeCode{
		Email:     rec.Email,
		CodeHash:  rec.CodeHash,
		Purpose:   domain.OTPPurpose(rec.Purpose),
		Attempts:  rec.Attempts,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (r *redisOTPRepository) Delete(ctx context.Context, email, codeHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := deleteIfHash.Run(ctx, r.client, []string{otpKeyPrefix + email}, codeHash).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisOTPRepository) RecordFailure(ctx context.Context, email, codeHash string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return recordFailure.Run(ctx, r.client, []string{otpKeyPrefix + email}, codeHash).Int()
}

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	UserType  string    `json:"user_type"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// deactivate flips the active flag in place without touching the key TTL.
var deactivate = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local rec = cjson.decode(v)
rec.active = false
redis.call('SET', KEYS[1], cjson.encode(rec), 'KEEPTTL')
return 1
`)

type redisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) SessionRepository {
	return &redisSessionRepository{client: client}
}

func (r *redisSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	payload, err := json.Marshal(sessionRecord{
		UserID:    s.UserID,
		UserType:  string(s.UserType),
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.ExpiresAt,
		Active:    s.Active,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.client.Set(ctx, sessionKeyPrefix+s.ID, payload, keyTTL(s.ExpiresAt)).Err()
}

func (r *redisSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &domain.Session{
		ID:        id,
		UserID:    rec.UserID,
		UserType:  domain.UserType(rec.UserType),
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Active:    rec.Active,
	}, nil
}

func (r *redisSessionRepository) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return deactivate.Run(ctx, r.client, []string{sessionKeyPrefix + id}).Err()
}

// keyTTL never returns zero, which Redis would read as "no expiry".
func keyTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
