package auth

import "github.com/jrsteele09/go-session-auth/users"

// RegisterParameters is the registration request body.
type RegisterParameters struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,alphanum,min=3"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8,password"`
}

// LoginParameters is the login request body.
type LoginParameters struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TwoFactorCodeParameters carries a TOTP or backup code.
type TwoFactorCodeParameters struct {
	TwoFactorCode string `json:"twoFactorCode" validate:"required,min=6"`
}

// Identity is the request-scoped view of the authenticated user. It is
// rebuilt from the session record and user storage on every request.
type Identity struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	Username         string      `json:"username,omitempty"`
	Name             string      `json:"name,omitempty"`
	Roles            users.Roles `json:"roles"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
	IsActive         bool        `json:"isActive"`
	Requires2FA      bool        `json:"requires2FA"`
	Verified2FA      bool        `json:"verified2FA"`
}

// Minimal strips the identity down to what the 2FA setup routes need.
func (i *Identity) Minimal() *Identity {
	return &Identity{
		ID:          i.ID,
		Email:       i.Email,
		Roles:       i.Roles,
		IsActive:    i.IsActive,
		Requires2FA: i.Requires2FA,
		Verified2FA: i.Verified2FA,
	}
}

// LoginResponse is returned from a successful login.
type LoginResponse struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	Username         string      `json:"username"`
	Name             string      `json:"name"`
	Roles            users.Roles `json:"roles"`
	Requires2FA      bool        `json:"requires2FA"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
}

// MessageResponse is the body of operations that only report an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// EnableResponse is returned when 2FA is switched on. Backup codes are only
// ever shown here.
type EnableResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backupCodes"`
}

// VerifyResponse is returned when a session's second factor is proven.
type VerifyResponse struct {
	Message              string `json:"message"`
	UsedBackupCode       bool   `json:"usedBackupCode,omitempty"`
	RemainingBackupCodes int    `json:"remainingBackupCodes"`
}
