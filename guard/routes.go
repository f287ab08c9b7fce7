package guard

import (
	"strings"

	"github.com/jrsteele09/go-session-auth/users"
)

// TwoFactorPrefixes are the only paths reachable before a session proves its
// second factor.
var TwoFactorPrefixes = []string{
	"/auth/2fa/generate",
	"/auth/2fa/enable",
	"/auth/2fa/verify",
	"/auth/2fa/send",
}

// IsTwoFactorPath reports whether path is a 2FA setup or verification path.
func IsTwoFactorPath(path string) bool {
	for _, p := range TwoFactorPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// RoutePolicy is the per-route guard configuration.
type RoutePolicy struct {
	// Roles required by the route. Empty means any authenticated identity.
	Roles users.Roles
	// TwoFactorExempt routes may be reached before the session is verified.
	// Only honoured for paths under TwoFactorPrefixes.
	TwoFactorExempt bool
	// SessionOnly routes need a session id but no record or identity.
	SessionOnly bool
}

// RouteTable maps a route identifier to its policy. REST routes use their
// path, GraphQL fields use "graphql:<field>".
type RouteTable map[string]RoutePolicy

// Policy returns the policy for route, or the zero policy when none is
// declared.
func (rt RouteTable) Policy(route string) RoutePolicy {
	return rt[route]
}

// GraphQLRoute returns the route identifier of a GraphQL field.
func GraphQLRoute(field string) string {
	return "graphql:" + field
}
