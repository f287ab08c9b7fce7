package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/server"
	fakesessionstore "github.com/jrsteele09/go-session-auth/sessions/repofakes"
	"github.com/jrsteele09/go-session-auth/twofactor"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testUsername = "alice"
	testPassword = "Password1!"
)

type testFixture struct {
	service *auth.Service
	store   *fakesessionstore.FakeSessionStore
	srv     *httptest.Server
}

type client struct {
	t    *testing.T
	http *http.Client
	base string
}

func setupTestFixture(t *testing.T, options ...server.ServerOption) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000")

	userRepo := fakeuserrepo.NewFakeUserRepo()
	store := fakesessionstore.NewFakeSessionStore()
	engine, err := twofactor.NewEngine(userRepo, "SocialMediaApp")
	require.NoError(t, err)
	service, err := auth.NewService(auth.Repos{Users: userRepo, Sessions: store}, engine, auth.WithSessionTTL(time.Hour))
	require.NoError(t, err)

	options = append([]server.ServerOption{server.WithRateLimit(0)}, options...)
	handler, err := server.New(config.New(), service, store, options...)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testFixture{service: service, store: store, srv: srv}
}

func (f *testFixture) newClient(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, http: &http.Client{Jar: jar}, base: f.srv.URL}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c *client) register(email, username string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, server.RouteAuthRegister, map[string]string{
		"email": email, "username": username, "name": "Test User", "password": testPassword,
	})
	require.Equal(c.t, http.StatusCreated, status, body)
}

func (c *client) login(email string) map[string]any {
	c.t.Helper()
	status, body := c.do(http.MethodPost, server.RouteAuthLogin, map[string]string{"email": email, "password": testPassword})
	require.Equal(c.t, http.StatusOK, status, body)
	return body
}

// enroll provisions and enables 2FA, returning the secret and backup codes.
func (c *client) enroll() (string, []any) {
	c.t.Helper()
	status, setup := c.do(http.MethodPost, server.RouteTwoFactorGenerate, nil)
	require.Equal(c.t, http.StatusOK, status, setup)
	secret := setup["secret"].(string)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(c.t, err)
	status, enabled := c.do(http.MethodPost, server.RouteTwoFactorEnable, map[string]string{"twoFactorCode": code})
	require.Equal(c.t, http.StatusOK, status, enabled)
	return secret, enabled["backupCodes"].([]any)
}

func requireError(t *testing.T, body map[string]any, status int, message string) {
	t.Helper()
	require.Equal(t, float64(status), body["statusCode"])
	require.Equal(t, message, body["message"])
	require.Equal(t, http.StatusText(status), body["error"])
	require.NotEmpty(t, body["timestamp"])
	require.NotEmpty(t, body["path"])
}

func TestServer_LoginEnrollAndAccess(t *testing.T) {
	f := setupTestFixture(t)
	c := f.newClient(t)

	status, body := c.do(http.MethodPost, server.RouteAuthRegister, map[string]string{
		"email": testEmail, "username": testUsername, "name": "Alice", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, testEmail, body["email"])
	require.Equal(t, []any{"USER"}, body["roles"])
	require.NotContains(t, body, "passwordHash")
	require.NotContains(t, body, "twoFactorSecret")

	login := c.login(testEmail)
	require.Equal(t, true, login["requires2FA"])
	require.Equal(t, false, login["twoFactorEnabled"])

	status, body = c.do(http.MethodGet, server.RouteUserProfile, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	requireError(t, body, http.StatusUnauthorized, "Two-factor authentication required")

	_, backupCodes := c.enroll()
	require.Len(t, backupCodes, twofactor.BackupCodeCount)

	status, body = c.do(http.MethodGet, server.RouteUserProfile, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, testEmail, body["email"])
	require.Equal(t, true, body["twoFactorEnabled"])

	t.Run("role protected routes", func(t *testing.T) {
		status, body := c.do(http.MethodGet, server.RouteAuthAdmin, nil)
		require.Equal(t, http.StatusForbidden, status)
		requireError(t, body, http.StatusForbidden, "Forbidden resource")

		status, _ = c.do(http.MethodGet, server.RouteUsers, nil)
		require.Equal(t, http.StatusForbidden, status)
	})

	t.Run("new login starts unverified and accepts a backup code", func(t *testing.T) {
		c.login(testEmail)
		status, _ := c.do(http.MethodGet, server.RouteUserProfile, nil)
		require.Equal(t, http.StatusUnauthorized, status)

		status, body := c.do(http.MethodPost, server.RouteTwoFactorVerify, map[string]string{"twoFactorCode": backupCodes[0].(string)})
		require.Equal(t, http.StatusOK, status, body)
		require.Equal(t, true, body["usedBackupCode"])
		require.Equal(t, float64(twofactor.BackupCodeCount-1), body["remainingBackupCodes"])

		status, _ = c.do(http.MethodGet, server.RouteUserProfile, nil)
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("used backup code is rejected", func(t *testing.T) {
		c.login(testEmail)
		status, body := c.do(http.MethodPost, server.RouteTwoFactorVerify, map[string]string{"twoFactorCode": backupCodes[0].(string)})
		require.Equal(t, http.StatusUnauthorized, status)
		requireError(t, body, http.StatusUnauthorized, "Invalid two-factor code")
	})

	t.Run("enrolled user cannot regenerate before verifying", func(t *testing.T) {
		c.login(testEmail)
		status, _ := c.do(http.MethodPost, server.RouteTwoFactorGenerate, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("logout then logout again", func(t *testing.T) {
		status, body := c.do(http.MethodPost, server.RouteAuthLogout, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "Logged out successfully", body["message"])

		status, body = c.do(http.MethodGet, server.RouteUserProfile, nil)
		require.Equal(t, http.StatusUnauthorized, status)
		requireError(t, body, http.StatusUnauthorized, "No session found")

		status, _ = c.do(http.MethodPost, server.RouteAuthLogout, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestServer_Register(t *testing.T) {
	f := setupTestFixture(t)
	c := f.newClient(t)
	c.register(testEmail, testUsername)

	t.Run("duplicate username", func(t *testing.T) {
		status, body := c.do(http.MethodPost, server.RouteAuthRegister, map[string]string{
			"email": "other@example.com", "username": testUsername, "name": "Other", "password": testPassword,
		})
		require.Equal(t, http.StatusConflict, status)
		requireError(t, body, http.StatusConflict, "User with this email or username already exists")
	})

	t.Run("validation failure", func(t *testing.T) {
		status, body := c.do(http.MethodPost, server.RouteAuthRegister, map[string]string{
			"email": "not-an-email", "username": "bob", "name": "Bob", "password": testPassword,
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, []any{"Please provide a valid email"}, body["details"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+server.RouteAuthRegister, bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_LoginFailures(t *testing.T) {
	f := setupTestFixture(t)
	c := f.newClient(t)
	c.register(testEmail, testUsername)

	for name, creds := range map[string]map[string]string{
		"wrong password": {"email": testEmail, "password": "Wrong1!xx"},
		"unknown email":  {"email": "nobody@example.com", "password": testPassword},
	} {
		t.Run(name, func(t *testing.T) {
			status, body := c.do(http.MethodPost, server.RouteAuthLogin, creds)
			require.Equal(t, http.StatusUnauthorized, status)
			requireError(t, body, http.StatusUnauthorized, "Invalid credentials")
		})
	}
}

func TestServer_SessionCookie(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("unsigned cookie is ignored", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteUserProfile, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "sessionId", Value: "forged"})
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "No session found", body["message"])
	})

	t.Run("login sets an http only cookie", func(t *testing.T) {
		c := f.newClient(t)
		c.register(testEmail, testUsername)

		raw, err := json.Marshal(map[string]string{"email": testEmail, "password": testPassword})
		require.NoError(t, err)
		resp, err := http.Post(f.srv.URL+server.RouteAuthLogin, "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		defer resp.Body.Close()

		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "sessionId", cookies[0].Name)
		require.True(t, cookies[0].HttpOnly)
		require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		require.Equal(t, int(time.Hour/time.Second), cookies[0].MaxAge)

		raw, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NotContains(t, string(raw), "sessionId")
		require.NotContains(t, string(raw), cookies[0].Value)
	})

	t.Run("refresh needs a live session", func(t *testing.T) {
		c := f.newClient(t)
		c.login(testEmail)
		status, body := c.do(http.MethodPost, server.RouteAuthRefresh, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "Session refreshed successfully", body["message"])
	})
}

func TestServer_AdminAccess(t *testing.T) {
	f := setupTestFixture(t)
	_, err := server.SeedUsers(context.Background(), f.service, testPassword)
	require.NoError(t, err)

	c := f.newClient(t)
	c.login("jane@example.com")
	c.enroll()

	status, body := c.do(http.MethodGet, server.RouteAuthAdmin, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "Admin access granted", body["message"])

	status, _ = c.do(http.MethodGet, server.RouteAuthModerator, nil)
	require.Equal(t, http.StatusOK, status)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteUsers+"?limit=1", nil)
	require.NoError(t, err)
	resp, err := c.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	require.NotContains(t, list[0], "passwordHash")

	t.Run("seeding twice is a no-op", func(t *testing.T) {
		_, err := server.SeedUsers(context.Background(), f.service, testPassword)
		require.NoError(t, err)
		all, err := f.service.ListUsers(context.Background(), 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})
}

func TestServer_GraphQL(t *testing.T) {
	f := setupTestFixture(t)
	c := f.newClient(t)
	c.register(testEmail, testUsername)

	query := func(q string) map[string]any {
		t.Helper()
		status, body := c.do(http.MethodPost, server.RouteGraphQL, map[string]string{"query": q})
		require.Equal(t, http.StatusOK, status)
		return body
	}
	errorCode := func(body map[string]any) string {
		t.Helper()
		errs, ok := body["errors"].([]any)
		require.True(t, ok, body)
		require.NotEmpty(t, errs)
		ext := errs[0].(map[string]any)["extensions"].(map[string]any)
		return ext["code"].(string)
	}

	require.Equal(t, "UNAUTHENTICATED", errorCode(query(`{ profile { email } }`)))

	c.login(testEmail)
	require.Equal(t, "UNAUTHENTICATED", errorCode(query(`{ profile { email } }`)))

	c.enroll()
	body := query(`{ profile { email roles twoFactorEnabled } }`)
	require.Nil(t, body["errors"])
	profile := body["data"].(map[string]any)["profile"].(map[string]any)
	require.Equal(t, testEmail, profile["email"])
	require.Equal(t, []any{"USER"}, profile["roles"])
	require.Equal(t, true, profile["twoFactorEnabled"])

	require.Equal(t, "FORBIDDEN", errorCode(query(`{ users { email } }`)))
}

func TestServer_Ambient(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		f := setupTestFixture(t)
		status, body := f.newClient(t).do(http.MethodGet, server.RouteHealth, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "ok", body["status"])
	})

	t.Run("rate limit", func(t *testing.T) {
		f := setupTestFixture(t, server.WithRateLimit(1))
		c := f.newClient(t)
		creds := map[string]string{"email": testEmail, "password": testPassword}

		status, _ := c.do(http.MethodPost, server.RouteAuthLogin, creds)
		require.Equal(t, http.StatusUnauthorized, status)
		status, body := c.do(http.MethodPost, server.RouteAuthLogin, creds)
		require.Equal(t, http.StatusTooManyRequests, status)
		requireError(t, body, http.StatusTooManyRequests, "Too many requests, please try again later")
	})

	t.Run("cors preflight", func(t *testing.T) {
		f := setupTestFixture(t)
		req, err := http.NewRequest(http.MethodOptions, f.srv.URL+server.RouteAuthLogin, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown route", func(t *testing.T) {
		f := setupTestFixture(t)
		status, body := f.newClient(t).do(http.MethodGet, "/nope", nil)
		require.Equal(t, http.StatusNotFound, status)
		requireError(t, body, http.StatusNotFound, "Cannot GET /nope")
	})
}
