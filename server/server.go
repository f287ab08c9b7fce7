package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/graphql-go/graphql"
	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env         string // Environment (e.g., "DEV", "PRODUCTION")
	router      chi.Router
	routes      []string
	config      config.Config
	auth        *auth.Service
	store       sessions.Store
	policies    guard.RouteTable
	accessGuard *guard.AccessGuard
	roleGuard   *guard.RoleGuard
	cookies     *cookieCodec
	limiter     *rateLimiter
	schema      graphql.Schema
	nowTime     func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the clock used for error timestamps.
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithRateLimit overrides the configured requests per minute. Zero disables
// rate limiting.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *Server) {
		s.limiter = nil
		if perMinute > 0 {
			s.limiter = newRateLimiter(perMinute)
		}
	}
}

func New(config config.Config, authService *auth.Service, store sessions.Store, options ...ServerOption) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}
	if store == nil {
		return nil, errors.New("[Server New] session store is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		router:   chi.NewRouter(),
		config:   config,
		auth:     authService,
		store:    store,
		policies: routePolicies(),
		cookies:  newCookieCodec(config.GetSessionSecret()),
		nowTime:  time.Now,
	}
	if config.GetEnableRateLimiting() {
		s.limiter = newRateLimiter(config.GetRateLimitPerMinute())
	}
	for _, opt := range options {
		opt(s)
	}

	s.accessGuard = guard.NewAccessGuard(authService, s.policies)
	s.roleGuard = guard.NewRoleGuard(s.policies)

	schema, err := s.newGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to build graphql schema: %w", err)
	}
	s.schema = schema

	s.router.Use(middleware.RealIP)
	for _, mw := range s.APIMiddleware() {
		s.router.Use(handlerMiddleware(mw))
	}
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Method(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, _ := strings.Cut(route, " ")
		logRoute(method, path)
	}
}

func logRoute(method, path string) {
	displayMethod := Gray + fmt.Sprintf(" %-7s", method) + ResetColor
	if color, ok := methodColors[method]; ok {
		displayMethod = color + fmt.Sprintf(" %-7s", method) + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
