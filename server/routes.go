package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/jrsteele09/go-session-auth/users"
)

// routePolicies declares the guard configuration of every protected route.
// Routes missing from the table get the zero policy: any role, verified
// session required.
func routePolicies() guard.RouteTable {
	return guard.RouteTable{
		RouteAuthLogout:  {SessionOnly: true},
		RouteAuthRefresh: {SessionOnly: true},

		RouteTwoFactorGenerate: {TwoFactorExempt: true},
		RouteTwoFactorEnable:   {TwoFactorExempt: true},
		RouteTwoFactorVerify:   {TwoFactorExempt: true},
		RouteTwoFactorSend:     {TwoFactorExempt: true},

		RouteAuthAdmin:     {Roles: users.Roles{users.RoleAdmin}},
		RouteAuthModerator: {Roles: users.Roles{users.RoleModerator, users.RoleAdmin}},
		RouteUsers:         {Roles: users.Roles{users.RoleAdmin}},
		RouteUserProfile:   {},

		guard.GraphQLRoute(fieldProfile): {},
		guard.GraphQLRoute(fieldUsers):   {Roles: users.Roles{users.RoleAdmin}},
	}
}

func (s *Server) initRoutes() {
	// Public
	s.RegisterRouteFunc(http.MethodPost, RouteAuthRegister, s.RegisterHandler())
	s.RegisterRouteFunc(http.MethodPost, RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.RateLimitMiddleware))
	s.RegisterRouteFunc(http.MethodGet, RouteHealth, s.HealthHandler())

	// Session only
	s.RegisterRouteFunc(http.MethodPost, RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.RequireSession()))
	s.RegisterRouteFunc(http.MethodPost, RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.RequireSession()))

	// Two-factor setup and verification, reachable before the session is verified
	twoFactor := []func(http.HandlerFunc) http.HandlerFunc{s.RateLimitMiddleware, s.RequireSession()}
	s.RegisterRouteFunc(http.MethodPost, RouteTwoFactorGenerate, ChainMiddleware(s.GenerateSecretHandler(), twoFactor...))
	s.RegisterRouteFunc(http.MethodPost, RouteTwoFactorEnable, ChainMiddleware(s.EnableTwoFactorHandler(), twoFactor...))
	s.RegisterRouteFunc(http.MethodPost, RouteTwoFactorVerify, ChainMiddleware(s.VerifyCodeHandler(), twoFactor...))
	s.RegisterRouteFunc(http.MethodPost, RouteTwoFactorSend, ChainMiddleware(s.SendCodeHandler(), twoFactor...))

	// Verified session with role checks
	protected := []func(http.HandlerFunc) http.HandlerFunc{s.RequireSession(), s.RequireRoles()}
	s.RegisterRouteFunc(http.MethodGet, RouteAuthAdmin, ChainMiddleware(s.RoleAccessHandler("Admin access granted"), protected...))
	s.RegisterRouteFunc(http.MethodGet, RouteAuthModerator, ChainMiddleware(s.RoleAccessHandler("Moderator access granted"), protected...))
	s.RegisterRouteFunc(http.MethodGet, RouteUserProfile, ChainMiddleware(s.ProfileHandler(), protected...))
	s.RegisterRouteFunc(http.MethodGet, RouteUsers, ChainMiddleware(s.ListUsersHandler(), protected...))

	// GraphQL fields are guarded inside their resolvers
	s.RegisterRouteFunc(http.MethodPost, RouteGraphQL, s.GraphQLHandler())
}
