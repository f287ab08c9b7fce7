package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

// RoleAccessResponse is returned by the role protected sample routes.
type RoleAccessResponse struct {
	Message string         `json:"message"`
	User    *auth.Identity `json:"user"`
}

// HealthResponse reports the session store status.
type HealthResponse struct {
	Status       string `json:"status"`
	SessionStore string `json:"sessionStore"`
}

// decodeBody decodes and validates a JSON request body into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, invalidBodyMsg)
		return false
	}
	if err := s.auth.Validator().Struct(v); err != nil {
		s.mapError(w, r, err)
		return false
	}
	return true
}

// RegisterHandler creates a user with the default role.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params auth.RegisterParameters
		if !s.decodeBody(w, r, &params) {
			return
		}
		user, err := s.auth.Register(r.Context(), params)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

// LoginHandler checks credentials, issues a new session id and writes an
// unverified session for it.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params auth.LoginParameters
		if !s.decodeBody(w, r, &params) {
			return
		}
		user, err := s.auth.ValidateUser(r.Context(), params.Email, params.Password)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		if user == nil {
			s.mapError(w, r, auth.InvalidCredentialsErr)
			return
		}

		// A previous session on this client is dropped rather than promoted.
		if previous := s.sessionID(r); previous != "" {
			if _, err := s.auth.Logout(r.Context(), previous); err != nil {
				log.Warn().Err(err).Msg("failed to drop previous session")
			}
		}

		sessionID := uuid.NewString()
		resp, err := s.auth.Login(r.Context(), user, sessionID)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		if err := s.setSessionCookie(w, sessionID); err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// LogoutHandler deletes the session and clears the cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.auth.Logout(r.Context(), s.sessionID(r))
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, resp)
	}
}

// RefreshHandler extends the session lifetime and reissues the cookie.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionID(r)
		resp, err := s.auth.Refresh(r.Context(), sessionID)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		if err := s.setSessionCookie(w, sessionID); err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GenerateSecretHandler provisions a TOTP secret and returns its QR code.
func (s *Server) GenerateSecretHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setup, err := s.auth.GenerateSecret(r.Context(), s.sessionID(r))
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, setup)
	}
}

// EnableTwoFactorHandler confirms the pending secret for the session user.
func (s *Server) EnableTwoFactorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params auth.TwoFactorCodeParameters
		if !s.decodeBody(w, r, &params) {
			return
		}
		identity := guard.IdentityFrom(r.Context())
		resp, err := s.auth.EnableTwoFactor(r.Context(), identity.ID, params.TwoFactorCode, s.sessionID(r))
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// VerifyCodeHandler proves the second factor for the session.
func (s *Server) VerifyCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params auth.TwoFactorCodeParameters
		if !s.decodeBody(w, r, &params) {
			return
		}
		resp, err := s.auth.VerifyCode(r.Context(), s.sessionID(r), params.TwoFactorCode)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SendCodeHandler mails the current code when delivery is configured.
func (s *Server) SendCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := guard.IdentityFrom(r.Context())
		resp, err := s.auth.SendTwoFactorCode(r.Context(), identity.ID)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RoleAccessHandler answers the role protected sample routes.
func (s *Server) RoleAccessHandler(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, RoleAccessResponse{
			Message: message,
			User:    guard.IdentityFrom(r.Context()),
		})
	}
}

// ProfileHandler returns the sanitized session user.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := guard.IdentityFrom(r.Context())
		user, err := s.auth.Profile(r.Context(), identity.ID)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ListUsersHandler returns a page of users. offset and limit are optional
// query parameters.
func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, err := queryInt(r, "offset")
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "offset must be an integer")
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		list, err := s.auth.ListUsers(r.Context(), offset, limit)
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// HealthHandler pings the session store.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			log.Error().Err(errors.Wrap(err, "[Server.HealthHandler] Ping")).Msg("session store unavailable")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error", SessionStore: "down"})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", SessionStore: "up"})
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
