package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Registration, Login & Logout
	RouteAuthRegister = "/auth/register"
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"

	// Auth Routes - Two-factor setup and verification
	RouteTwoFactorGenerate = "/auth/2fa/generate"
	RouteTwoFactorEnable   = "/auth/2fa/enable"
	RouteTwoFactorVerify   = "/auth/2fa/verify"
	RouteTwoFactorSend     = "/auth/2fa/send"

	// Role protected sample routes
	RouteAuthAdmin     = "/auth/admin"
	RouteAuthModerator = "/auth/moderator"

	// User Routes
	RouteUsers       = "/users"
	RouteUserProfile = "/users/profile"

	// GraphQL
	RouteGraphQL = "/graphql"

	// Health
	RouteHealth = "/healthz"
)
