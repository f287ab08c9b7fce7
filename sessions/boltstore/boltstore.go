// Package boltstore provides a BBolt-backed session store for single node
// deployments. Expiry is stored alongside each record and enforced on read.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("sessions")

var _ sessions.Store = (*Store)(nil)

type envelope struct {
	Record    sessions.Record `json:"record"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Store implements sessions.Store backed by a BBolt database.
type Store struct {
	db      *bbolt.DB
	nowTime func() time.Time
}

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "creating sessions bucket")
	}
	return &Store{db: db, nowTime: time.Now}, nil
}

// Open opens a BBolt database at the given path and returns a new Store.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, apperrors.Wrapf(err, "opening bbolt db")
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithNowTime sets the clock used for expiry (tests only).
func (s *Store) WithNowTime(nowFunc func() time.Time) *Store {
	s.nowTime = nowFunc
	return s
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, sessionID string) (*sessions.Record, error) {
	key := []byte(sessions.Key(sessionID))
	var env envelope
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(key)
		if data == nil {
			return apperrors.ErrNotFound
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, err
	}
	if s.nowTime().Before(env.ExpiresAt) {
		return &env.Record, nil
	}
	return s.dropExpired(key)
}

// dropExpired re-reads key inside a write transaction and deletes it only if
// it is still expired. A record rewritten since the read is returned instead.
func (s *Store) dropExpired(key []byte) (*sessions.Record, error) {
	var live *sessions.Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err == nil && s.nowTime().Before(env.ExpiresAt) {
			live = &env.Record
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "delete expired session")
	}
	if live == nil {
		return nil, apperrors.ErrNotFound
	}
	return live, nil
}

func (s *Store) Set(_ context.Context, sessionID string, record *sessions.Record, ttl time.Duration) error {
	data, err := json.Marshal(envelope{Record: *record, ExpiresAt: s.nowTime().Add(ttl)})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(sessions.Key(sessionID)), data)
	})
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(sessions.Key(sessionID)))
	})
}

func (s *Store) Ping(context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return fmt.Errorf("sessions bucket missing")
		}
		return nil
	})
}

// PurgeExpired removes every expired record and returns how many were dropped.
func (s *Store) PurgeExpired() (int, error) {
	now := s.nowTime()
	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil || !now.Before(env.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(stale)
		return nil
	})
	return purged, err
}

// Count returns the number of stored records, expired ones included.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n, err
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (s *Store) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.PurgeExpired()
			if err != nil {
				log.Error().Err(err).Msg("failed to purge expired sessions")
				continue
			}
			if purged > 0 {
				log.Debug().Int("purged", purged).Msg("purged expired sessions")
			}
		}
	}
}
