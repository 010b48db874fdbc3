package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrFarmerNotFound      = errors.New("farmer not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrDelivery            = errors.New("otp delivery failed")
)

// The three OTP failures share one category; only the message differs.
var (
	ErrOTPNotFound = fmt.Errorf("%w: no code on file", ErrInvalidOrExpiredOTP)
	ErrOTPExpired  = fmt.Errorf("%w: code expired", ErrInvalidOrExpiredOTP)
	ErrOTPMismatch = fmt.Errorf("%w: code mismatch", ErrInvalidOrExpiredOTP)
)

// ErrWrongUserType is returned when an admin session calls a farmer-only
// operation.
var ErrWrongUserType = fmt.Errorf("%w: wrong user type", ErrForbidden)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
