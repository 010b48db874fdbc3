package domain

import "time"

type UserType string

const (
	UserTypeFarmer UserType = "farmer"
	UserTypeAdmin  UserType = "admin"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

type Admin struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type OTPPurpose string

const (
	PurposeRegistration  OTPPurpose = "registration"
	PurposeLogin         OTPPurpose = "login"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// OneTimeCode is the single outstanding code for an email. Only the bcrypt
// hash of the code is ever stored.
type OneTimeCode struct {
	Email     string
	CodeHash  string
	Purpose   OTPPurpose
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MaxOTPAttempts is the number of wrong guesses after which a code is burned.
const MaxOTPAttempts = 5

func (c *OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IssuedOTP carries the plaintext code back to the caller of Issue, which
// decides whether it may be echoed.
type IssuedOTP struct {
	Email     string
	Code      string
	Purpose   OTPPurpose
	ExpiresAt time.Time
}

// Session binds a bearer credential to one user. ID is the SHA-256 of the
// opaque session key, never the key itself.
type Session struct {
	ID        string
	UserID    string
	UserType  UserType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
}

func (s *Session) Valid(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// AuthUser is the identity a token resolves to. Exactly one of Farmer and
// Admin is set, matching Type.
type AuthUser struct {
	Type   UserType `json:"type"`
	Farmer *Farmer  `json:"farmer,omitempty"`
	Admin  *Admin   `json:"admin,omitempty"`
}

func (u *AuthUser) ID() string {
	switch {
	case u.Farmer != nil:
		return u.Farmer.ID
	case u.Admin != nil:
		return u.Admin.ID
	}
	return ""
}

func FarmerUser(f *Farmer) *AuthUser {
	return &AuthUser{Type: UserTypeFarmer, Farmer: f}
}

func AdminUser(a *Admin) *AuthUser {
	return &AuthUser{Type: UserTypeAdmin, Admin: a}
}

type AuthResult struct {
	User      *AuthUser `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const (
	FarmerStatusVerified   = "verified"
	FarmerStatusUnverified = "unverified"
	FarmerStatusPending    = "pending"
)
