package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-session-auth/guard"
)

// requestView normalizes an HTTP request for the access guard. The route is
// the registered pattern so the policy lookup matches the route table.
func (s *Server) requestView(r *http.Request) guard.RequestView {
	return guard.RequestView{
		SessionID: s.sessionID(r),
		Path:      routeOf(r),
	}
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// RequireSession runs the access guard and attaches the allowed identity to
// the request context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := s.accessGuard.Evaluate(r.Context(), s.requestView(r))
			if !decision.Allowed() {
				s.mapError(w, r, decision.Reason())
				return
			}
			ctx := guard.WithIdentity(r.Context(), decision.Identity())
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRoles checks the roles the route declares. It must run after
// RequireSession.
func (s *Server) RequireRoles() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ok, err := s.roleGuard.Check(r.Context(), routeOf(r))
			if err != nil {
				s.mapError(w, r, err)
				return
			}
			if !ok {
				s.mapError(w, r, forbiddenErr)
				return
			}
			next(w, r)
		}
	}
}
