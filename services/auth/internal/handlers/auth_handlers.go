package handlers

import (
	"net/http"

	"github.com/diagnosis/carbonmrv/internal/http/response"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

// SendOTP issues a one-time code and emails it.
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.SendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := h.otp.Issue(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"message": "OTP sent to " + issued.Email,
	}
	if h.config.Auth.EchoOTP {
		resp["otp"] = issued.Code
	}

	response.JSON(w, http.StatusOK, resp)
}

// VerifyOTP consumes a code and signs the farmer in, creating the account on
// first use.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.otp.Verify(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeAuthResult(w, http.StatusOK, result)
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.admin.Login(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeAuthResult(w, http.StatusOK, result)
}

func (h *Handlers) FarmerRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.FarmerRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.farmers.Register(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeAuthResult(w, http.StatusCreated, result)
}

func (h *Handlers) FarmerLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.FarmerLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.farmers.Login(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeAuthResult(w, http.StatusOK, result)
}

// Verify returns the user behind the bearer token.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    currentUser(r),
	})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		response.Unauthorized(w, "Missing or invalid authorization header")
		return
	}

	var upd domain.ProfileUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	farmer, err := h.profile.Update(r.Context(), token, &upd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    domain.FarmerUser(farmer),
	})
}

// Logout always succeeds; an unknown or missing token has nothing to revoke.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.sessions.Invalidate(r.Context(), token); err != nil {
			logger.ErrorContext(r.Context(), "Failed to invalidate session", "error", err)
		}
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func writeAuthResult(w http.ResponseWriter, status int, result *domain.AuthResult) {
	response.JSON(w, status, map[string]interface{}{
		"success":   true,
		"user":      result.User,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	})
}
