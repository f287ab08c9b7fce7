package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/server"
	fakesessionstore "github.com/jrsteele09/go-session-auth/sessions/repofakes"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/spf13/cobra"
)

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo user and administrator accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if c.GetDatabaseDriver() == driverMemory {
			return errors.New("seeding the in-memory user repository has no effect")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
		defer cancel()

		userRepo, closeUsers, err := openUserRepo(ctx, c)
		if err != nil {
			return err
		}
		defer closeUsers()

		return seed(ctx, c, userRepo)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "", "password for the demo accounts (generated when empty)")
}

func seed(ctx context.Context, c config.Config, userRepo users.UserRepo) error {
	// Seeding never touches sessions.
	authService, err := newAuthService(c, auth.Repos{Users: userRepo, Sessions: fakesessionstore.NewFakeSessionStore()})
	if err != nil {
		return err
	}
	password, err := server.SeedUsers(ctx, authService, seedPassword)
	if err != nil {
		return err
	}
	fmt.Printf("Demo accounts ready: john@example.com (USER), jane@example.com (ADMIN)\nPassword: %s\n", password)
	return nil
}
