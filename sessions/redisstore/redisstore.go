package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 3 * time.Second
)

var _ sessions.Store = (*Store)(nil)

// Options configures the redis connection.
type Options struct {
	Addr          string
	Password      string
	DB            int
	MaxReconnects int
}

// Store keeps session records as JSON strings under session:<id> with a
// native redis TTL. The client is shared and safe for concurrent use.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Connect dials redis and pings until it answers, backing off exponentially
// (2^n * 100ms, capped at 3s) for at most opts.MaxReconnects attempts.
// Commands are not retried by the client: a failure after startup is
// surfaced to the caller and the pool re-dials on the next command.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      -1,
		MinRetryBackoff: backoffBase,
		MaxRetryBackoff: backoffCap,
	})

	var err error
	for attempt := 0; ; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return New(client), nil
		}
		if attempt >= opts.MaxReconnects {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s unreachable after %d attempts: %w", opts.Addr, attempt+1, err)
		}
		delay := Backoff(attempt)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("redis not ready, reconnecting")
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Backoff returns the delay before reconnect attempt n.
func Backoff(attempt int) time.Duration {
	if attempt > 5 {
		return backoffCap
	}
	d := backoffBase << attempt
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func (s *Store) Get(ctx context.Context, sessionID string) (*sessions.Record, error) {
	raw, err := s.client.Get(ctx, sessions.Key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrapf(err, "redis get")
	}
	var rec sessions.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.Wrapf(err, "decode session record")
	}
	return &rec, nil
}

func (s *Store) Set(ctx context.Context, sessionID string, record *sessions.Record, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return apperrors.Wrapf(err, "encode session record")
	}
	if err := s.client.Set(ctx, sessions.Key(sessionID), raw, ttl).Err(); err != nil {
		return apperrors.Wrapf(err, "redis set")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessions.Key(sessionID)).Err(); err != nil {
		return apperrors.Wrapf(err, "redis del")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
