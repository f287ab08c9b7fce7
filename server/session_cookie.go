package server

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sessionCookieName = "sessionId"

// cookieCodec signs session ids into the cookie value so a client cannot
// present an id the server never issued.
type cookieCodec struct {
	secret []byte
}

func newCookieCodec(secret string) *cookieCodec {
	if secret == "" {
		log.Warn().Msg("SESSION_SECRET not set, using a random secret; sessions will not survive a restart")
		key := make([]byte, 32)
		_, _ = rand.Read(key)
		return &cookieCodec{secret: key}
	}
	return &cookieCodec{secret: []byte(secret)}
}

func (c *cookieCodec) encode(sessionID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: sessionID})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session cookie")
	}
	return signed, nil
}

// decode returns the session id, or "" when the value is not a cookie this
// server signed.
func (c *cookieCodec) decode(value string) string {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, c.verificationKey, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return ""
	}
	return claims.ID
}

func (c *cookieCodec) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.secret, nil
}

// sessionID reads the session id from the request cookie.
func (s *Server) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return s.cookies.decode(cookie.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) error {
	value, err := s.cookies.encode(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.sessionCookie(value, int(s.auth.SessionTTL()/time.Second)))
	return nil
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.sessionCookie("", -1))
}

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	secure := s.config.IsProduction()
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   maxAge,
	}
}
