package users

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode"

	"github.com/jrsteele09/go-session-auth/internal/utils"
)

// User is the stored identity. PasswordHash and the two-factor fields other
// than TwoFactorEnabled never serialize.
type User struct {
	ID           string    `json:"id,omitempty" db:"id"`
	Email        string    `json:"email,omitempty" db:"email"`
	Username     string    `json:"username,omitempty" db:"username"`
	Name         string    `json:"name,omitempty" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        Roles     `json:"roles" db:"roles"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	IsVerified   bool      `json:"isVerified" db:"is_verified"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	TwoFactorEnabled     bool    `json:"twoFactorEnabled" db:"two_factor_enabled"`
	TwoFactorSecret      *string `json:"-" db:"two_factor_secret"`       // pending until TwoFactorEnabled
	TwoFactorBackupCodes *string `json:"-" db:"two_factor_backup_codes"` // JSON array of single-use codes
	TwoFactorNextSecret  *string `json:"-" db:"two_factor_next_secret"`  // re-enrollment, unconfirmed
}

// Update is a partial field update. Nil fields are left untouched.
type Update struct {
	TwoFactorSecret      *string
	TwoFactorEnabled     *bool
	TwoFactorBackupCodes *string
	TwoFactorNextSecret  *string
	LastLoginAt          *time.Time
	IsActive             *bool
	Roles                *Roles
}

// Apply copies the non-nil fields of the update onto the user.
func (u Update) Apply(user *User) {
	if u.TwoFactorSecret != nil {
		user.TwoFactorSecret = utils.Ptr(*u.TwoFactorSecret)
	}
	if u.TwoFactorEnabled != nil {
		user.TwoFactorEnabled = *u.TwoFactorEnabled
	}
	if u.TwoFactorBackupCodes != nil {
		user.TwoFactorBackupCodes = utils.Ptr(*u.TwoFactorBackupCodes)
	}
	if u.TwoFactorNextSecret != nil {
		user.TwoFactorNextSecret = utils.Ptr(*u.TwoFactorNextSecret)
	}
	if u.LastLoginAt != nil {
		user.LastLoginAt = utils.Ptr(*u.LastLoginAt)
	}
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
	if u.Roles != nil {
		user.Roles = u.Roles.Normalize()
	}
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.TwoFactorSecret == nil && u.TwoFactorEnabled == nil && u.TwoFactorBackupCodes == nil &&
		u.TwoFactorNextSecret == nil && u.LastLoginAt == nil && u.IsActive == nil && u.Roles == nil
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append(Roles(nil), u.Roles...)
	c.LastLoginAt = utils.Copy(u.LastLoginAt)
	c.TwoFactorSecret = utils.Copy(u.TwoFactorSecret)
	c.TwoFactorBackupCodes = utils.Copy(u.TwoFactorBackupCodes)
	c.TwoFactorNextSecret = utils.Copy(u.TwoFactorNextSecret)
	return &c
}

// Sanitized returns a copy of the user with the password hash stripped.
func (u *User) Sanitized() *User {
	c := u.Clone()
	if c != nil {
		c.PasswordHash = ""
	}
	return c
}

// HasPendingSecret reports whether a TOTP secret has been provisioned.
func (u *User) HasPendingSecret() bool {
	return utils.Value(u.TwoFactorSecret) != ""
}

// SecretToConfirm is the secret an enable call must prove. Enrolled users
// confirm their re-enrollment secret; everyone else their pending one.
func (u *User) SecretToConfirm() string {
	if u.TwoFactorEnabled {
		return utils.Value(u.TwoFactorNextSecret)
	}
	return utils.Value(u.TwoFactorSecret)
}

// BackupCodes decodes the stored backup code set.
func (u *User) BackupCodes() ([]string, error) {
	raw := utils.Value(u.TwoFactorBackupCodes)
	if raw == "" {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, fmt.Errorf("decode backup codes: %w", err)
	}
	return codes, nil
}

// EncodeBackupCodes serializes a backup code set for storage.
func EncodeBackupCodes(codes []string) string {
	if codes == nil {
		codes = []string{}
	}
	b, _ := json.Marshal(codes)
	return string(b)
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number or special character
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper        bool
		hasLower        bool
		hasNumOrSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char), unicode.IsPunct(char), unicode.IsSymbol(char):
			hasNumOrSpecial = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumOrSpecial {
		return fmt.Errorf("password must contain at least one number or special character")
	}

	return nil
}
