package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SeedUser describes a demo account created by SeedUsers.
type SeedUser struct {
	Params auth.RegisterParameters
	Roles  users.Roles
}

// DefaultSeedUsers are a regular user and an administrator.
func DefaultSeedUsers(password string) []SeedUser {
	return []SeedUser{
		{
			Params: auth.RegisterParameters{Email: "john@example.com", Username: "johndoe", Name: "John Doe", Password: password},
			Roles:  users.Roles{users.RoleUser},
		},
		{
			Params: auth.RegisterParameters{Email: "jane@example.com", Username: "janedoe", Name: "Jane Doe", Password: password},
			Roles:  users.Roles{users.RoleAdmin, users.RoleUser},
		},
	}
}

// SeedUsers registers the demo accounts. Accounts that already exist are
// left untouched, so running it twice is safe. When password is empty a
// random one is generated and returned.
func SeedUsers(ctx context.Context, service *auth.Service, password string) (string, error) {
	if password == "" {
		generated, err := generatePassword()
		if err != nil {
			return "", err
		}
		password = generated
	}

	for _, seed := range DefaultSeedUsers(password) {
		user, err := service.Register(ctx, seed.Params, seed.Roles...)
		if errors.Is(err, auth.DuplicateUserErr) {
			log.Info().Str("email", seed.Params.Email).Msg("seed user already exists")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("[server SeedUsers] failed to create %s: %w", seed.Params.Email, err)
		}
		log.Info().Str("email", user.Email).Strs("roles", user.Roles.Strings()).Msg("seed user created")
	}
	return password, nil
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 12)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("[server generatePassword] failed to generate password: %w", err)
	}
	// Suffix guarantees the strength rules regardless of the random part.
	return base64.RawURLEncoding.EncodeToString(passwordBytes) + "Aa1", nil
}
