package config

import (
	"time"
)

type SessionBackend string

const (
	SessionBackendRedis  SessionBackend = "redis"
	SessionBackendBolt   SessionBackend = "bolt"
	SessionBackendMemory SessionBackend = "memory"
)

type SessionConfig interface {
	GetSessionExpiry() time.Duration
	GetSessionSecret() string
	GetSessionBackend() SessionBackend
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisMaxReconnects() int
	GetBoltPath() string
	GetBoltPurgeInterval() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionExpiry is the session lifetime, 3 days unless overridden.
func (Session) GetSessionExpiry() time.Duration {
	seconds := GetEnvInt("SESSION_EXPIRY_SECONDS", 259200)
	if seconds <= 0 {
		seconds = 259200
	}
	return time.Duration(seconds) * time.Second
}

// GetSessionSecret signs the session cookie. An empty secret makes the
// server generate a random one at startup.
func (Session) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "")
}

func (Session) GetSessionBackend() SessionBackend {
	return SessionBackend(GetEnv("SESSION_BACKEND", string(SessionBackendRedis)))
}

func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_HOST", "localhost") + ":" + GetEnv("REDIS_PORT", "6379")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Session) GetRedisMaxReconnects() int {
	return GetEnvInt("REDIS_MAX_RECONNECTS", 10)
}

func (Session) GetBoltPath() string {
	return GetEnv("BOLT_PATH", "./data/sessions.db")
}

// GetBoltPurgeInterval is how often expired records are swept from the bolt
// store, 10 minutes unless overridden.
func (Session) GetBoltPurgeInterval() time.Duration {
	seconds := GetEnvInt("BOLT_PURGE_INTERVAL_SECONDS", 600)
	if seconds <= 0 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}
