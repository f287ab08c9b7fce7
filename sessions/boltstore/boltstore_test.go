package boltstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/sessions/boltstore"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, now *time.Time) *boltstore.Store {
	t.Helper()

	store, err := boltstore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.WithNowTime(func() time.Time { return *now })
}

func TestStore_RoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := setupStore(t, &now)
	ctx := context.Background()

	rec := &sessions.Record{UserID: "u1", Email: "a@x.com", Role: users.Roles{users.RoleAdmin}, Requires2FA: true}
	require.NoError(t, store.Set(ctx, "sid", rec, time.Hour))

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, rec, got)
	require.NoError(t, store.Ping(ctx))

	require.NoError(t, store.Delete(ctx, "sid"))
	require.NoError(t, store.Delete(ctx, "sid"))
	_, err = store.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := setupStore(t, &now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", &sessions.Record{UserID: "u1"}, time.Minute))
	require.NoError(t, store.Set(ctx, "long", &sessions.Record{UserID: "u2"}, time.Hour))

	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "short")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	now = now.Add(2 * time.Hour)
	purged, err := store.PurgeExpired()
	require.NoError(t, err)
	require.Equal(t, 1, purged)
}

func TestStore_ExpiredReadKeepsRewrittenRecord(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store, err := boltstore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// The first clock read after Get loads the expired record rewrites the
	// session, as a concurrent login would.
	rewrite := false
	store.WithNowTime(func() time.Time {
		if rewrite {
			rewrite = false
			require.NoError(t, store.Set(ctx, "sid", &sessions.Record{UserID: "fresh"}, time.Hour))
		}
		return now
	})

	require.NoError(t, store.Set(ctx, "sid", &sessions.Record{UserID: "stale"}, time.Minute))
	now = now.Add(2 * time.Minute)
	rewrite = true

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, "fresh", got.UserID)

	got, err = store.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, "fresh", got.UserID)
}

func TestStore_ExpiredReadDeletes(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := setupStore(t, &now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "sid", &sessions.Record{UserID: "u1"}, time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	purged, err := store.PurgeExpired()
	require.NoError(t, err)
	require.Zero(t, purged)
}

func TestStore_RunPurger(t *testing.T) {
	var (
		lock sync.Mutex
		now  = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	)
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	store.WithNowTime(func() time.Time {
		lock.Lock()
		defer lock.Unlock()
		return now
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.Set(ctx, "sid", &sessions.Record{UserID: "u1"}, time.Minute))
	lock.Lock()
	now = now.Add(2 * time.Minute)
	lock.Unlock()

	n, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	done := make(chan struct{})
	go func() {
		store.RunPurger(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := store.Count()
		return err == nil && n == 0
	}, time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purger did not stop")
	}
}
