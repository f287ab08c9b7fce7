package config

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetRateLimitPerMinute() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetEnableRateLimiting is on unless RATE_LIMIT_PER_MINUTE is 0.
func (s Security) GetEnableRateLimiting() bool {
	return s.GetRateLimitPerMinute() > 0
}

func (Security) GetRateLimitPerMinute() int {
	return GetEnvInt("RATE_LIMIT_PER_MINUTE", 30)
}
