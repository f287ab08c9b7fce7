package auth

import (
	"context"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// CredentialVerifier checks an email and password against the stored hash.
type CredentialVerifier struct {
	users users.UserRepo
}

func NewCredentialVerifier(userRepo users.UserRepo) *CredentialVerifier {
	return &CredentialVerifier{users: userRepo}
}

// Validate returns the sanitized user when the password matches, and nil when
// the email is unknown or the password is wrong. Only storage failures are
// returned as errors.
func (cv *CredentialVerifier) Validate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := cv.users.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[CredentialVerifier.Validate] GetByEmail")
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil
	}
	return user.Sanitized(), nil
}
