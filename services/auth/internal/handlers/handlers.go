package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/carbonmrv/internal/http/response"
	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	mw "github.com/diagnosis/carbonmrv/pkg/middleware"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
	"github.com/diagnosis/carbonmrv/services/auth/internal/service"
)

const maxBodyBytes = 1 << 20

// Pinger is a backing dependency that /api/health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Services struct {
	OTP      service.OTPService
	Sessions service.SessionService
	Admin    service.AdminService
	Profile  service.ProfileService
	Farmers  service.FarmerAuthService
}

type Handlers struct {
	otp      service.OTPService
	sessions service.SessionService
	admin    service.AdminService
	profile  service.ProfileService
	farmers  service.FarmerAuthService
	limiter  *mw.RateLimiter
	checks   map[string]Pinger
	config   *config.Config
}

// New wires the handlers. limiter may be nil to disable rate limiting, and
// checks names the dependencies reported by /api/health.
func New(svc Services, limiter *mw.RateLimiter, checks map[string]Pinger, cfg *config.Config) *Handlers {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &Handlers{
		otp:      svc.OTP,
		sessions: svc.Sessions,
		admin:    svc.Admin,
		profile:  svc.Profile,
		farmers:  svc.Farmers,
		limiter:  limiter,
		checks:   checks,
		config:   cfg,
	}
}

// Routes returns the API router, meant to be mounted under /api.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)
	r.Get("/ping", h.Ping)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/send-otp", h.SendOTP)
			r.Post("/verify-otp", h.VerifyOTP)
			r.Post("/admin-login", h.AdminLogin)
			r.Post("/farmer-login", h.FarmerLogin)
		})

		r.Post("/farmer-register", h.FarmerRegister)
		r.Put("/update-profile", h.UpdateProfile)
		r.Post("/logout", h.Logout)
		r.With(h.RequireSession).Get("/verify", h.Verify)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireSession, h.RequireAdmin)
		r.Get("/farmers", h.ListFarmers)
		r.Put("/farmer-status", h.UpdateFarmerStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "API endpoint not found")
	})

	return r
}

type ctxKey struct{}

// RequireSession resolves the bearer token and stores the user on the
// request context.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			response.Unauthorized(w, "Missing or invalid authorization header")
			return
		}

		user, err := h.sessions.Resolve(r.Context(), token)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		ctx = context.WithValue(ctx, logger.UserIDKey, user.ID())
		ctx = context.WithValue(ctx, logger.UserTypeKey, string(user.Type))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireSession.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			response.Unauthorized(w, "Authentication required")
			return
		}
		if user.Type != domain.UserTypeAdmin {
			response.Forbidden(w, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *domain.AuthUser {
	if user, ok := r.Context().Value(ctxKey{}).(*domain.AuthUser); ok {
		return user
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// decodeJSON reads the request body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

// writeServiceError maps domain errors to status codes. Unexpected errors are
// logged in full and only described to the client in development.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError

	switch {
	case errors.As(err, &verr):
		response.WriteError(w, http.StatusBadRequest, verr.Error(), response.CodeInvalidInput)
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrInvalidOrExpiredOTP):
		response.WriteError(w, http.StatusBadRequest, "Invalid or expired OTP", response.CodeInvalidOrExpiredOTP)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.WriteError(w, http.StatusUnauthorized, "Invalid credentials", response.CodeInvalidCredentials)
	case errors.Is(err, domain.ErrUnauthenticated):
		response.Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "Access denied")
	case errors.Is(err, domain.ErrFarmerNotFound):
		response.NotFound(w, "Farmer not found")
	case errors.Is(err, domain.ErrEmailExists):
		response.Conflict(w, "Email already registered")
	case errors.Is(err, domain.ErrDelivery):
		logger.ErrorContext(r.Context(), "Email delivery failed", "error", err)
		h.writeInternal(w, http.StatusInternalServerError, "Failed to send email", response.CodeDeliveryFailed, err)
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		h.writeInternal(w, http.StatusInternalServerError, "Internal server error", response.CodeInternalError, err)
	}
}

func (h *Handlers) writeInternal(w http.ResponseWriter, status int, message, code string, err error) {
	if h.config != nil && h.config.IsDevelopment() {
		response.WriteErrorWithDetails(w, status, message, code, err.Error())
		return
	}
	response.WriteError(w, status, message, code)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
