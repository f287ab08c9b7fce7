package auth_test

import (
	"testing"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/stretchr/testify/require"
)

func TestValidator_Struct(t *testing.T) {
	v := auth.NewValidator()

	t.Run("valid register body", func(t *testing.T) {
		err := v.Struct(auth.RegisterParameters{Email: "a@x.com", Username: "alice", Password: "Password1!", Name: "Alice"})
		require.NoError(t, err)
	})

	t.Run("weak password", func(t *testing.T) {
		err := v.Struct(auth.RegisterParameters{Email: "a@x.com", Username: "alice", Password: "password1", Name: "Alice"})
		var verr *auth.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, []string{"Password must contain uppercase, lowercase, number/special character"}, verr.Messages)
	})

	t.Run("short username", func(t *testing.T) {
		err := v.Struct(auth.RegisterParameters{Email: "a@x.com", Username: "al", Password: "Password1!", Name: "Alice"})
		require.EqualError(t, err, "username must be longer than or equal to 3 characters")
	})

	t.Run("login body", func(t *testing.T) {
		err := v.Struct(auth.LoginParameters{Email: "a@x.com"})
		require.EqualError(t, err, "password should not be empty")
	})

	t.Run("short code", func(t *testing.T) {
		err := v.Struct(auth.TwoFactorCodeParameters{TwoFactorCode: "123"})
		require.EqualError(t, err, "twoFactorCode must be longer than or equal to 6 characters")
	})
}

func TestKindOf(t *testing.T) {
	kind, ok := auth.KindOf(auth.TwoFactorRequiredErr)
	require.True(t, ok)
	require.Equal(t, auth.KindTwoFactorRequired, kind)

	custom := &auth.Error{Kind: auth.KindInvalidSession, Message: "session expired"}
	require.ErrorIs(t, custom, auth.InvalidSessionErr)
	require.NotErrorIs(t, custom, auth.NoSessionErr)

	_, ok = auth.KindOf(auth.NewValidator().Struct(auth.LoginParameters{}))
	require.False(t, ok)
}
