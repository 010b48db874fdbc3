package domain

import (
	"strings"

	"github.com/diagnosis/carbonmrv/internal/utils"
)

type SendOTPRequest struct {
	Email   string     `json:"email" validate:"required,email,max=254"`
	Purpose OTPPurpose `json:"purpose" validate:"omitempty,oneof=registration login password_reset"`
}

func (r *SendOTPRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.Purpose = OTPPurpose(strings.ToLower(strings.TrimSpace(string(r.Purpose))))
	if r.Purpose == "" {
		r.Purpose = PurposeLogin
	}
}

func (r *SendOTPRequest) Validate() error {
	return validateStruct(r)
}

type VerifyOTPRequest struct {
	Email            string            `json:"email" validate:"required"`
	OTP              string            `json:"otp" validate:"required"`
	RegistrationData *RegistrationData `json:"registrationData,omitempty"`
}

func (r *VerifyOTPRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
	if r.RegistrationData != nil {
		r.RegistrationData.Normalize()
	}
}

func (r *VerifyOTPRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.RegistrationData != nil {
		return r.RegistrationData.Validate()
	}
	return nil
}

type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *AdminLoginRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *AdminLoginRequest) Validate() error {
	return validateStruct(r)
}

type FarmerRegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"max=128"`
	Phone    string `json:"phone" validate:"omitempty,min=7,max=16"`
}

func (r *FarmerRegisterRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = utils.NormalizePhone(r.Phone)
}

func (r *FarmerRegisterRequest) Validate() error {
	return validateStruct(r)
}

type FarmerLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *FarmerLoginRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *FarmerLoginRequest) Validate() error {
	return validateStruct(r)
}

type FarmerStatusRequest struct {
	FarmerID string `json:"farmerId" validate:"required"`
	Status   string `json:"status" validate:"required,oneof=verified unverified pending"`
}

func (r *FarmerStatusRequest) Normalize() {
	r.FarmerID = strings.TrimSpace(r.FarmerID)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *FarmerStatusRequest) Validate() error {
	return validateStruct(r)
}
