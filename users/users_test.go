package users_test

import (
	"testing"

	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := users.HashPassword("Password1!")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$m=65536,t=3,p=1$")

	require.True(t, users.CheckPasswordHash("Password1!", hash))
	require.False(t, users.CheckPasswordHash("password1!", hash))
	require.False(t, users.CheckPasswordHash("Password1!", "not-a-hash"))
	require.False(t, users.CheckPasswordHash("Password1!", ""))

	other, err := users.HashPassword("Password1!")
	require.NoError(t, err)
	require.NotEqual(t, hash, other, "salt must differ per hash")
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		errText  string
	}{
		{"Password1!", ""},
		{"Password!", ""},
		{"Passw1", "at least 8 characters"},
		{"password1", "uppercase"},
		{"PASSWORD1", "lowercase"},
		{"Passwordd", "number or special"},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.errText == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestRoles(t *testing.T) {
	rs := users.Roles{users.RoleUser, users.RoleAdmin}
	require.True(t, rs.Has(users.RoleAdmin))
	require.False(t, rs.Has(users.RoleModerator))
	require.True(t, rs.Intersects(users.Roles{users.RoleModerator, users.RoleAdmin}))
	require.False(t, rs.Intersects(users.Roles{users.RoleModerator}))
	require.False(t, rs.Intersects(nil))

	parsed, err := users.ParseRoles(" admin, USER ,admin")
	require.NoError(t, err)
	require.Equal(t, users.Roles{users.RoleAdmin, users.RoleUser}, parsed)

	_, err = users.ParseRoles("ROOT")
	require.Error(t, err)

	var scanned users.Roles
	require.NoError(t, scanned.Scan([]byte("MODERATOR,ADMIN")))
	require.Equal(t, users.Roles{users.RoleModerator, users.RoleAdmin}, scanned)
}

func TestUser_SanitizedAndBackupCodes(t *testing.T) {
	u := &users.User{
		ID:                   "u1",
		PasswordHash:         "secret-hash",
		TwoFactorBackupCodes: utils.Ptr(users.EncodeBackupCodes([]string{"ABC", "DEF"})),
	}
	s := u.Sanitized()
	require.Empty(t, s.PasswordHash)
	require.Equal(t, "secret-hash", u.PasswordHash, "original must be untouched")

	codes, err := s.BackupCodes()
	require.NoError(t, err)
	require.Equal(t, []string{"ABC", "DEF"}, codes)

	empty := &users.User{}
	codes, err = empty.BackupCodes()
	require.NoError(t, err)
	require.Nil(t, codes)
	require.False(t, empty.HasPendingSecret())
}
