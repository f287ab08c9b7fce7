package fakesessionstore

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
)

var _ sessions.Store = (*FakeSessionStore)(nil)

type entry struct {
	record    sessions.Record
	expiresAt time.Time
}

// FakeSessionStore is a thread-safe in-memory Store with TTL expiry.
// Sessions are lost on restart.
type FakeSessionStore struct {
	sessions map[string]entry
	lock     sync.RWMutex
	nowTime  func() time.Time
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{
		sessions: make(map[string]entry),
		nowTime:  time.Now,
	}
}

// WithNowTime sets the clock used for expiry checks (tests only).
func (ss *FakeSessionStore) WithNowTime(nowFunc func() time.Time) *FakeSessionStore {
	ss.nowTime = nowFunc
	return ss
}

func (ss *FakeSessionStore) Get(_ context.Context, sessionID string) (*sessions.Record, error) {
	ss.lock.RLock()
	e, ok := ss.sessions[sessionID]
	ss.lock.RUnlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !ss.nowTime().Before(e.expiresAt) {
		_ = ss.Delete(context.Background(), sessionID)
		return nil, apperrors.ErrNotFound
	}
	rec := e.record
	return &rec, nil
}

func (ss *FakeSessionStore) Set(_ context.Context, sessionID string, record *sessions.Record, ttl time.Duration) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	ss.sessions[sessionID] = entry{record: *record, expiresAt: ss.nowTime().Add(ttl)}
	return nil
}

func (ss *FakeSessionStore) Delete(_ context.Context, sessionID string) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	delete(ss.sessions, sessionID)
	return nil
}

func (ss *FakeSessionStore) Ping(context.Context) error {
	return nil
}

// TTL returns the remaining lifetime of a session, zero when absent.
func (ss *FakeSessionStore) TTL(sessionID string) time.Duration {
	ss.lock.RLock()
	defer ss.lock.RUnlock()

	e, ok := ss.sessions[sessionID]
	if !ok {
		return 0
	}
	if d := e.expiresAt.Sub(ss.nowTime()); d > 0 {
		return d
	}
	return 0
}
