package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
)

const (
	testAdminEmail    = "admin@carbonmrv.local"
	testAdminPassword = "s3cret-admin"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{codes: make(map[string]string)}
}

func (m *captureMailer) SendOTP(_ context.Context, email, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) last(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	err      error
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

func (b *recordingBus) lastPayload(subject string) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.subjects) - 1; i >= 0; i-- {
		if b.subjects[i] == subject {
			return b.payloads[i]
		}
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.EnvTest},
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret",
			SessionTTL:         24 * time.Hour,
			OTPTTL:             5 * time.Minute,
			OTPHashCost:        4,
			SessionTokenFormat: config.TokenFormatOpaque,
			AdminEmail:         testAdminEmail,
			AdminPassword:      testAdminPassword,
			AdminName:          "Admin",
			AdminRole:          "admin",
			MinPasswordLength:  6,
		},
	}
}

type harness struct {
	cfg      *config.Config
	store    *repository.Store
	clock    *fakeClock
	mailer   *captureMailer
	bus      *recordingBus
	sessions SessionService
	otp      OTPService
	admin    AdminService
	profile  ProfileService
	farmers  FarmerAuthService
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, fn := range tweak {
		fn(cfg)
	}

	h := &harness{
		cfg:    cfg,
		store:  repository.NewMemoryStore(),
		clock:  newFakeClock(),
		mailer: newCaptureMailer(),
		bus:    &recordingBus{},
	}
	h.sessions = NewSessionService(h.store, h.bus, h.clock, cfg)
	h.otp = NewOTPService(h.store, h.sessions, h.mailer, h.bus, h.clock, cfg)
	h.admin = NewAdminService(h.store, h.sessions, h.bus, h.clock, cfg)
	h.profile = NewProfileService(h.store, h.sessions, h.bus, h.clock)
	fa := NewFarmerAuthService(h.store, h.sessions, h.bus, h.clock, cfg).(*farmerAuthService)
	fa.hashParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	h.farmers = fa
	return h
}

var errMailDown = errors.New("mail server down")

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func requireCode(t *testing.T, h *harness, email string) string {
	t.Helper()
	code := h.mailer.last(email)
	require.Len(t, code, 6)
	return code
}
