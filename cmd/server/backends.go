package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/mailer"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/sessions/boltstore"
	"github.com/jrsteele09/go-session-auth/sessions/redisstore"
	fakesessionstore "github.com/jrsteele09/go-session-auth/sessions/repofakes"
	"github.com/jrsteele09/go-session-auth/twofactor"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/jrsteele09/go-session-auth/users/sqlrepo"
	"github.com/rs/zerolog/log"
)

const driverMemory = "memory"

type closer func() error

func noClose() error { return nil }

// openSessionStore connects the configured key-value backend.
func openSessionStore(ctx context.Context, c config.Config) (sessions.Store, closer, error) {
	switch c.GetSessionBackend() {
	case config.SessionBackendRedis:
		store, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:          c.GetRedisAddr(),
			Password:      c.GetRedisPassword(),
			MaxReconnects: c.GetRedisMaxReconnects(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("connected to redis")
		return store, store.Close, nil
	case config.SessionBackendBolt:
		if err := os.MkdirAll(filepath.Dir(c.GetBoltPath()), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := boltstore.Open(c.GetBoltPath())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", c.GetBoltPath()).Msg("opened bolt session store")
		return store, startPurger(store, c.GetBoltPurgeInterval()), nil
	case config.SessionBackendMemory:
		log.Warn().Msg("using in-memory session store; sessions are lost on restart")
		return fakesessionstore.NewFakeSessionStore(), noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", c.GetSessionBackend())
	}
}

// startPurger sweeps expired bolt records in the background. The returned
// closer stops the sweep before closing the database.
func startPurger(store *boltstore.Store, interval time.Duration) closer {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunPurger(ctx, interval)
	}()
	return func() error {
		cancel()
		<-done
		return store.Close()
	}
}

// openUserRepo connects the configured user storage and creates its schema.
func openUserRepo(ctx context.Context, c config.Config) (users.UserRepo, closer, error) {
	driver := c.GetDatabaseDriver()
	if driver == driverMemory {
		log.Warn().Msg("using in-memory user repository; users are lost on restart")
		return fakeuserrepo.NewFakeUserRepo(), noClose, nil
	}
	if driver != sqlrepo.DriverPostgres && driver != sqlrepo.DriverSQLite {
		return nil, nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sqlrepo.Open(ctx, driver, c.GetDatabaseURL())
	if err != nil {
		return nil, nil, err
	}
	repo := sqlrepo.New(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db.Close, nil
}

// newAuthService wires the two-factor engine, optional mail delivery and the
// session state machine.
func newAuthService(c config.Config, repos auth.Repos) (*auth.Service, error) {
	engine, err := twofactor.NewEngine(repos.Users, c.GetAppName())
	if err != nil {
		return nil, err
	}
	options := []auth.ServiceOption{auth.WithSessionTTL(c.GetSessionExpiry())}
	if c.SmtpConfigured() {
		options = append(options, auth.WithCodeSender(mailer.New(
			c.GetSmtpHost(), c.GetSmtpPort(), c.GetSmtpAccount(), c.GetSmtpPassword(), c.GetAppName(),
		)))
	}
	return auth.NewService(repos, engine, options...)
}
