package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/events"
	mw "github.com/diagnosis/carbonmrv/pkg/middleware"
	"github.com/diagnosis/carbonmrv/services/auth/internal/handlers"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
	"github.com/diagnosis/carbonmrv/services/auth/internal/service"
)

// ---------- Mocks ----------

type mockMailer struct {
	mu      sync.Mutex
	codes   map[string]string
	sendErr error
}

func (m *mockMailer) SendOTP(_ context.Context, email, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.codes[email] = code
	return nil
}

func (m *mockMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// ---------- Helpers ----------

const (
	adminEmail    = "admin@carbonmrv.local"
	adminPassword = "admin-pass"
)

type testServer struct {
	*httptest.Server
	mailer *mockMailer
	store  *repository.Store
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.EnvTest, PingMessage: "pong"},
		Auth: config.AuthConfig{
			SessionTTL:         time.Hour,
			OTPTTL:             5 * time.Minute,
			OTPHashCost:        4,
			SessionTokenFormat: config.TokenFormatOpaque,
			AdminEmail:         adminEmail,
			AdminPassword:      adminPassword,
			AdminName:          "Admin",
			AdminRole:          "admin",
			MinPasswordLength:  6,
		},
	}
}

func setupTestServer(t *testing.T, opts ...func(*config.Config, map[string]handlers.Pinger)) *testServer {
	t.Helper()

	cfg := testConfig()
	checks := map[string]handlers.Pinger{
		"store": handlers.PingFunc(func(context.Context) error { return nil }),
	}
	for _, opt := range opts {
		opt(cfg, checks)
	}

	store := repository.NewMemoryStore()
	mailer := &mockMailer{codes: make(map[string]string)}
	bus := events.NopPublisher{}
	clock := service.RealClock{}

	sessions := service.NewSessionService(store, bus, clock, cfg)
	svc := handlers.Services{
		OTP:      service.NewOTPService(store, sessions, mailer, bus, clock, cfg),
		Sessions: sessions,
		Admin:    service.NewAdminService(store, sessions, bus, clock, cfg),
		Profile:  service.NewProfileService(store, sessions, bus, clock),
		Farmers:  service.NewFarmerAuthService(store, sessions, bus, clock, cfg),
	}

	var limiter *mw.RateLimiter
	if cfg.RateLimit.OTPPerMinute > 0 {
		limiter = mw.NewRateLimiter(cfg.RateLimit.OTPPerMinute, cfg.RateLimit.Burst, time.Minute)
	}

	h := handlers.New(svc, limiter, checks, cfg)
	r := chi.NewRouter()
	r.Use(mw.TrustProxy(cfg.Server.TrustProxy))
	r.Mount("/api", h.Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mailer: mailer, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body %v)", method, path, wantStatus, resp.StatusCode, out)
	}
	return out
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()
	return s.do(t, http.MethodPost, path, "", body, wantStatus)
}

func (s *testServer) get(t *testing.T, path, token string, wantStatus int) map[string]interface{} {
	t.Helper()
	return s.do(t, http.MethodGet, path, token, nil, wantStatus)
}

func (s *testServer) loginFarmer(t *testing.T, email string, registration map[string]interface{}) string {
	t.Helper()
	s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": email}, http.StatusOK)
	body := map[string]interface{}{"email": email, "otp": s.mailer.code(email)}
	if registration != nil {
		body["registrationData"] = registration
	}
	resp := s.postJSON(t, "/api/auth/verify-otp", body, http.StatusOK)
	return resp["token"].(string)
}

func (s *testServer) loginAdmin(t *testing.T) string {
	t.Helper()
	resp := s.postJSON(t, "/api/auth/admin-login", map[string]string{"email": adminEmail, "password": adminPassword}, http.StatusOK)
	return resp["token"].(string)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func farmerField(t *testing.T, resp map[string]interface{}, field string) interface{} {
	t.Helper()
	user, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no user: %v", resp)
	}
	farmer, ok := user["farmer"].(map[string]interface{})
	if !ok {
		t.Fatalf("user has no farmer: %v", user)
	}
	return farmer[field]
}

// ---------- Tests ----------

func TestOTPLoginScenario(t *testing.T) {
	s := setupTestServer(t)
	email := "farmer@example.com"

	resp := s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": email}, http.StatusOK)
	if resp["success"] != true {
		t.Fatalf("expected success, got %v", resp)
	}
	if _, echoed := resp["otp"]; echoed {
		t.Fatal("otp must not be echoed when echo is disabled")
	}

	code := s.mailer.code(email)
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	resp = s.postJSON(t, "/api/auth/verify-otp", map[string]string{"email": email, "otp": wrongCode(code)}, http.StatusBadRequest)
	if resp["code"] != "INVALID_OR_EXPIRED_OTP" {
		t.Errorf("expected INVALID_OR_EXPIRED_OTP, got %v", resp["code"])
	}

	resp = s.postJSON(t, "/api/auth/verify-otp", map[string]string{"email": email, "otp": code}, http.StatusOK)
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("expected token, got %v", resp)
	}
	if farmerField(t, resp, "email") != email {
		t.Errorf("unexpected farmer email %v", farmerField(t, resp, "email"))
	}

	resp = s.get(t, "/api/auth/verify", token, http.StatusOK)
	user := resp["user"].(map[string]interface{})
	if user["type"] != "farmer" {
		t.Errorf("expected farmer user, got %v", user["type"])
	}

	// The code is single use.
	s.postJSON(t, "/api/auth/verify-otp", map[string]string{"email": email, "otp": code}, http.StatusBadRequest)
}

func TestVerifyOTP_CodeBurnedAfterRepeatedGuesses(t *testing.T) {
	s := setupTestServer(t)
	email := "guess@example.com"

	s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": email}, http.StatusOK)
	code := s.mailer.code(email)

	for i := 0; i < 5; i++ {
		s.postJSON(t, "/api/auth/verify-otp", map[string]string{"email": email, "otp": wrongCode(code)}, http.StatusBadRequest)
	}

	resp := s.postJSON(t, "/api/auth/verify-otp", map[string]string{"email": email, "otp": code}, http.StatusBadRequest)
	if resp["code"] != "INVALID_OR_EXPIRED_OTP" {
		t.Errorf("expected INVALID_OR_EXPIRED_OTP, got %v", resp["code"])
	}
}

func TestVerifyOTP_RateLimitIgnoresForwardedFor(t *testing.T) {
	s := setupTestServer(t, func(c *config.Config, _ map[string]handlers.Pinger) {
		c.RateLimit.OTPPerMinute = 1
		c.RateLimit.Burst = 2
	})

	statuses := map[int]int{}
	for i := 0; i < 10; i++ {
		body := bytes.NewBufferString(`{"email":"spoof@example.com","otp":"123456"}`)
		req, err := http.NewRequest(http.MethodPost, s.URL+"/api/auth/verify-otp", body)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("verify-otp: %v", err)
		}
		resp.Body.Close()
		statuses[resp.StatusCode]++
	}

	if statuses[http.StatusTooManyRequests] != 8 {
		t.Fatalf("expected 8 rate-limited responses, got %v", statuses)
	}
}

func TestSendOTP_Validation(t *testing.T) {
	s := setupTestServer(t)

	s.postJSON(t, "/api/auth/send-otp", map[string]string{}, http.StatusBadRequest)
	resp := s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": "not-an-email"}, http.StatusBadRequest)
	if resp["code"] != "INVALID_INPUT" {
		t.Errorf("expected INVALID_INPUT, got %v", resp["code"])
	}
	s.postJSON(t, "/api/auth/send-otp", "{not json", http.StatusBadRequest)
}

func TestSendOTP_EchoWhenEnabled(t *testing.T) {
	s := setupTestServer(t, func(c *config.Config, _ map[string]handlers.Pinger) {
		c.Auth.EchoOTP = true
	})

	resp := s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": "echo@example.com"}, http.StatusOK)
	if resp["otp"] != s.mailer.code("echo@example.com") {
		t.Errorf("expected echoed otp %q, got %v", s.mailer.code("echo@example.com"), resp["otp"])
	}
}

func TestSendOTP_DeliveryFailure(t *testing.T) {
	s := setupTestServer(t)
	s.mailer.sendErr = errors.New("smtp down")

	resp := s.postJSON(t, "/api/auth/send-otp", map[string]string{"email": "x@example.com"}, http.StatusInternalServerError)
	if resp["code"] != "DELIVERY_FAILED" {
		t.Errorf("expected DELIVERY_FAILED, got %v", resp["code"])
	}
	if _, ok := resp["details"]; ok {
		t.Error("details must be hidden outside development")
	}
}

func TestSendOTP_RateLimited(t *testing.T) {
	s := setupTestServer(t, func(c *config.Config, _ map[string]handlers.Pinger) {
		c.RateLimit.OTPPerMinute = 1
		c.RateLimit.Burst = 2
	})

	body := map[string]string{"email": "rl@example.com"}
	s.postJSON(t, "/api/auth/send-otp", body, http.StatusOK)
	s.postJSON(t, "/api/auth/send-otp", body, http.StatusOK)
	resp := s.postJSON(t, "/api/auth/send-otp", body, http.StatusTooManyRequests)
	if resp["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %v", resp["code"])
	}
}

func TestAdminLogin_SameErrorForWrongEmailAndPassword(t *testing.T) {
	s := setupTestServer(t)

	wrongPass := s.postJSON(t, "/api/auth/admin-login", map[string]string{"email": adminEmail, "password": "nope"}, http.StatusUnauthorized)
	wrongEmail := s.postJSON(t, "/api/auth/admin-login", map[string]string{"email": "other@carbonmrv.local", "password": adminPassword}, http.StatusUnauthorized)

	if wrongPass["message"] != wrongEmail["message"] || wrongPass["code"] != wrongEmail["code"] {
		t.Errorf("responses differ: %v vs %v", wrongPass, wrongEmail)
	}

	s.postJSON(t, "/api/auth/admin-login", map[string]string{"email": adminEmail}, http.StatusBadRequest)

	token := s.loginAdmin(t)
	resp := s.get(t, "/api/auth/verify", token, http.StatusOK)
	if resp["user"].(map[string]interface{})["type"] != "admin" {
		t.Errorf("expected admin user, got %v", resp["user"])
	}
}

func TestVerify_RequiresToken(t *testing.T) {
	s := setupTestServer(t)

	s.get(t, "/api/auth/verify", "", http.StatusUnauthorized)
	resp := s.get(t, "/api/auth/verify", "bogus", http.StatusUnauthorized)
	if resp["code"] != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %v", resp["code"])
	}
}

func TestUpdateProfile(t *testing.T) {
	s := setupTestServer(t)
	token := s.loginFarmer(t, "profile@example.com", map[string]interface{}{
		"landSize":             10,
		"landUnit":             "acres",
		"sustainablePractices": []string{"agroforestry", "composting"},
	})

	resp := s.get(t, "/api/auth/verify", token, http.StatusOK)
	if got := farmerField(t, resp, "estimatedIncome"); got != float64(4860) {
		t.Fatalf("expected income 4860, got %v", got)
	}

	resp = s.do(t, http.MethodPut, "/api/auth/update-profile", token, map[string]string{"phone": "+919876543210"}, http.StatusOK)
	if got := farmerField(t, resp, "estimatedIncome"); got != float64(4860) {
		t.Errorf("phone update changed income to %v", got)
	}

	resp = s.do(t, http.MethodPut, "/api/auth/update-profile", token, map[string]interface{}{"landSize": 20}, http.StatusOK)
	if got := farmerField(t, resp, "estimatedIncome"); got != float64(9720) {
		t.Errorf("expected income 9720, got %v", got)
	}

	s.do(t, http.MethodPut, "/api/auth/update-profile", token, map[string]interface{}{"landSize": -3}, http.StatusBadRequest)
	s.do(t, http.MethodPut, "/api/auth/update-profile", "", map[string]string{"name": "x"}, http.StatusUnauthorized)

	admin := s.loginAdmin(t)
	resp = s.do(t, http.MethodPut, "/api/auth/update-profile", admin, map[string]string{"name": "x"}, http.StatusForbidden)
	if resp["code"] != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN, got %v", resp["code"])
	}
}

func TestLogout(t *testing.T) {
	s := setupTestServer(t)
	token := s.loginFarmer(t, "bye@example.com", nil)

	s.do(t, http.MethodPost, "/api/auth/logout", token, nil, http.StatusOK)
	s.get(t, "/api/auth/verify", token, http.StatusUnauthorized)

	// Logging out again, or without a token, still succeeds.
	s.do(t, http.MethodPost, "/api/auth/logout", token, nil, http.StatusOK)
	s.do(t, http.MethodPost, "/api/auth/logout", "", nil, http.StatusOK)
}

func TestFarmerPasswordAuth(t *testing.T) {
	s := setupTestServer(t)
	creds := map[string]string{"email": "pw@example.com", "password": "hunter22"}

	resp := s.postJSON(t, "/api/auth/farmer-register", creds, http.StatusCreated)
	if farmerField(t, resp, "name") != "pw" {
		t.Errorf("expected default name, got %v", farmerField(t, resp, "name"))
	}
	resp = s.postJSON(t, "/api/auth/farmer-register", creds, http.StatusConflict)
	if resp["code"] != "EMAIL_EXISTS" {
		t.Errorf("expected EMAIL_EXISTS, got %v", resp["code"])
	}

	s.postJSON(t, "/api/auth/farmer-login", creds, http.StatusOK)
	s.postJSON(t, "/api/auth/farmer-login", map[string]string{"email": "pw@example.com", "password": "wrong-one"}, http.StatusUnauthorized)
	s.postJSON(t, "/api/auth/farmer-register", map[string]string{"email": "short@example.com", "password": "abc"}, http.StatusBadRequest)
}

func TestAdminFarmerManagement(t *testing.T) {
	s := setupTestServer(t)
	farmerToken := s.loginFarmer(t, "managed@example.com", nil)
	admin := s.loginAdmin(t)

	s.get(t, "/api/admin/farmers", "", http.StatusUnauthorized)
	s.get(t, "/api/admin/farmers", farmerToken, http.StatusForbidden)

	resp := s.get(t, "/api/admin/farmers?limit=500", admin, http.StatusOK)
	if resp["total"] != float64(1) {
		t.Fatalf("expected 1 farmer, got %v", resp["total"])
	}
	if resp["limit"] != float64(100) {
		t.Errorf("expected limit clamped to 100, got %v", resp["limit"])
	}
	farmers := resp["farmers"].([]interface{})
	id := farmers[0].(map[string]interface{})["id"].(string)

	resp = s.do(t, http.MethodPut, "/api/admin/farmer-status", admin, map[string]string{"farmerId": id, "status": "unverified"}, http.StatusOK)
	if resp["farmer"].(map[string]interface{})["verified"] != false {
		t.Errorf("expected farmer unverified, got %v", resp["farmer"])
	}

	s.do(t, http.MethodPut, "/api/admin/farmer-status", admin, map[string]string{"farmerId": "missing", "status": "verified"}, http.StatusNotFound)
	s.do(t, http.MethodPut, "/api/admin/farmer-status", admin, map[string]string{"farmerId": id, "status": "banned"}, http.StatusBadRequest)
}

func TestHealthAndPing(t *testing.T) {
	s := setupTestServer(t)

	resp := s.get(t, "/api/health", "", http.StatusOK)
	if resp["status"] != "ok" {
		t.Errorf("expected ok, got %v", resp["status"])
	}
	resp = s.get(t, "/api/ping", "", http.StatusOK)
	if resp["message"] != "pong" {
		t.Errorf("expected pong, got %v", resp["message"])
	}

	down := setupTestServer(t, func(_ *config.Config, checks map[string]handlers.Pinger) {
		checks["redis"] = handlers.PingFunc(func(context.Context) error { return errors.New("down") })
	})
	resp = down.get(t, "/api/health", "", http.StatusServiceUnavailable)
	services := resp["services"].(map[string]interface{})
	if services["redis"] != "error" || services["store"] != "ok" {
		t.Errorf("unexpected services %v", services)
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	s := setupTestServer(t)

	resp := s.get(t, "/api/nope", "", http.StatusNotFound)
	if resp["message"] != "API endpoint not found" || resp["success"] != false {
		t.Errorf("unexpected body %v", resp)
	}
}
