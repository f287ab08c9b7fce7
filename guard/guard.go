// Package guard decides whether a request may reach its handler. Transports
// normalize their request into a RequestView, the AccessGuard turns that into
// a Decision and the RoleGuard checks declared roles against the identity the
// AccessGuard attached.
package guard

import (
	"context"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RequestView is the transport independent shape of a request.
type RequestView struct {
	SessionID string
	Path      string
}

// Decision is the tagged outcome of the access guard: either Allow with an
// identity (nil for session-only routes) or Deny with a reason.
type Decision struct {
	allowed  bool
	identity *auth.Identity
	reason   error
}

func Allow(identity *auth.Identity) Decision {
	return Decision{allowed: true, identity: identity}
}

func Deny(reason error) Decision {
	return Decision{reason: reason}
}

func (d Decision) Allowed() bool {
	return d.allowed
}

func (d Decision) Identity() *auth.Identity {
	return d.identity
}

// Reason is nil for an Allow decision.
func (d Decision) Reason() error {
	return d.reason
}

// SessionResolver is the part of the session state machine the guard reads.
type SessionResolver interface {
	RawSessionData(ctx context.Context, sessionID string) (*sessions.Record, error)
	ResolvedIdentity(ctx context.Context, sessionID string) (*auth.Identity, error)
}

// AccessGuard applies the session decision table to every request.
type AccessGuard struct {
	resolver SessionResolver
	routes   RouteTable
}

func NewAccessGuard(resolver SessionResolver, routes RouteTable) *AccessGuard {
	return &AccessGuard{resolver: resolver, routes: routes}
}

// Evaluate runs the decision table in order; the first matching row wins.
func (ag *AccessGuard) Evaluate(ctx context.Context, view RequestView) Decision {
	policy := ag.routes.Policy(view.Path)

	if view.SessionID == "" {
		return ag.deny(view, auth.NoSessionErr)
	}
	if policy.SessionOnly {
		return Allow(nil)
	}

	record, err := ag.resolver.RawSessionData(ctx, view.SessionID)
	if err != nil {
		return ag.deny(view, errors.Wrap(err, "[AccessGuard.Evaluate] RawSessionData"))
	}
	if record == nil {
		return ag.deny(view, auth.InvalidSessionErr)
	}

	identity, err := ag.resolver.ResolvedIdentity(ctx, view.SessionID)
	if err != nil {
		return ag.deny(view, errors.Wrap(err, "[AccessGuard.Evaluate] ResolvedIdentity"))
	}
	if identity == nil {
		return ag.deny(view, auth.UserNotFoundErr)
	}

	if policy.TwoFactorExempt && IsTwoFactorPath(view.Path) {
		if !identity.Verified2FA {
			identity = identity.Minimal()
		}
		return Allow(identity)
	}

	// Every session must prove a second factor, enrolled or not.
	if !identity.Verified2FA {
		return ag.deny(view, auth.TwoFactorRequiredErr)
	}
	if !identity.IsActive {
		return ag.deny(view, auth.AccountInactiveErr)
	}
	return Allow(identity)
}

func (ag *AccessGuard) deny(view RequestView, reason error) Decision {
	log.Debug().Str("path", view.Path).Err(reason).Msg("access denied")
	return Deny(reason)
}

// RoleGuard checks the roles a route declares against the attached identity.
type RoleGuard struct {
	routes RouteTable
}

func NewRoleGuard(routes RouteTable) *RoleGuard {
	return &RoleGuard{routes: routes}
}

// Check returns true when the route declares no roles or the identity holds
// any of them. A missing identity is an error; a role mismatch is false.
func (rg *RoleGuard) Check(ctx context.Context, route string) (bool, error) {
	required := rg.routes.Policy(route).Roles
	if len(required) == 0 {
		return true, nil
	}
	identity := IdentityFrom(ctx)
	if identity == nil {
		return false, &auth.Error{Kind: auth.KindUnauthorized, Message: "No user found in request"}
	}
	return identity.Roles.Intersects(required), nil
}

type contextKey struct{}

// WithIdentity attaches the resolved identity to ctx.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFrom returns the identity attached by WithIdentity, or nil.
func IdentityFrom(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextKey{}).(*auth.Identity)
	return identity
}
