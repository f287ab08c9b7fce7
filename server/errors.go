package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON  = "application/json"
	internalErrorMsg = "Internal server error"
	forbiddenMsg     = "Forbidden resource"
	invalidBodyMsg   = "Invalid request body"
)

// ErrorResponse is the body of every non 2xx REST response.
type ErrorResponse struct {
	StatusCode int       `json:"statusCode"`
	Message    string    `json:"message"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
	Details    []string  `json:"details,omitempty"`
}

// forbiddenErr is returned when the role guard rejects an identity.
var forbiddenErr = errors.New(forbiddenMsg)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string, details ...string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
		Timestamp:  s.nowTime().UTC(),
		Path:       r.URL.Path,
		Details:    details,
	})
}

// mapError renders err with the status its kind maps to. Errors without a
// kind never leak their text.
func (s *Server) mapError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, r, status, verr.Error(), verr.Messages...)
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.writeError(w, r, status, internalErrorMsg)
	default:
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
		s.writeError(w, r, status, publicMessage(err))
	}
}

func publicMessage(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}

func statusFor(err error) int {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, forbiddenErr) {
		return http.StatusForbidden
	}
	kind, ok := auth.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if kind == auth.KindDuplicateUser {
		return http.StatusConflict
	}
	return http.StatusUnauthorized
}

// graphQLCode is the errors[].extensions.code value for err.
func graphQLCode(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "BAD_USER_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}
