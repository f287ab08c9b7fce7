package auth

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/twofactor"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	loggedOutMsg     = "Logged out successfully"
	enabledMsg       = "Two-factor authentication enabled successfully"
	verifiedMsg      = "Two-factor authentication verified successfully"
	refreshedMsg     = "Session refreshed successfully"
	codeSentMsg      = "A two-factor code has been sent to your email"
	codeNotSentMsg   = "In a production app, a 2FA code would be sent to the user's phone or email"
	defaultListLimit = 50
	maximumListLimit = 200
)

// CodeSender delivers a one-time code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users    users.UserRepo // Repository for user data
	Sessions sessions.Store // Key-value store holding session records
}

// Service is the session state machine. A session moves from no record, to
// a record with verified2FA=false after login, to verified2FA=true once a
// second factor is proven. Logout or TTL expiry removes the record.
//
// Session mutations are read-modify-write against the store with no
// cross-request locking; concurrent writers to one session race and the last
// write wins.
type Service struct {
	repos     Repos
	verifier  *CredentialVerifier
	engine    *twofactor.Engine
	validator *Validator
	sender    CodeSender
	ttl       time.Duration
	nowTime   func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSessionTTL sets the lifetime written on every session mutation.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCodeSender enables out-of-band delivery of the current TOTP code.
func WithCodeSender(sender CodeSender) ServiceOption {
	return func(s *Service) {
		s.sender = sender
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, engine *twofactor.Engine, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions store is required")
	}
	if engine == nil {
		return nil, errors.New("[NewService] two-factor engine is required")
	}

	s := &Service{
		repos:     repos,
		verifier:  NewCredentialVerifier(repos.Users),
		engine:    engine,
		validator: NewValidator(),
		ttl:       sessions.DefaultTTL,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Validator returns the request body validator shared with the transports.
func (s *Service) Validator() *Validator {
	return s.validator
}

// ValidateUser is the Credential Verifier entry point.
func (s *Service) ValidateUser(ctx context.Context, email, password string) (*users.User, error) {
	return s.verifier.Validate(ctx, email, password)
}

// Register creates a user. Roles default to USER when none are given.
func (s *Service) Register(ctx context.Context, params RegisterParameters, roles ...users.Role) (*users.User, error) {
	if err := s.validator.Struct(params); err != nil {
		return nil, err
	}

	_, err := s.repos.Users.GetByEmailOrUsername(ctx, params.Email, params.Username)
	if err == nil {
		return nil, DuplicateUserErr
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Register] GetByEmailOrUsername")
	}

	hash, err := users.HashPassword(params.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] HashPassword")
	}

	if len(roles) == 0 {
		roles = users.Roles{users.RoleUser}
	}
	now := s.nowTime().UTC()
	user := &users.User{
		Email:        params.Email,
		Username:     params.Username,
		Name:         params.Name,
		PasswordHash: hash,
		Roles:        users.Roles(roles).Normalize(),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, DuplicateUserErr
		}
		return nil, errors.Wrap(err, "[Service.Register] Create")
	}
	return user.Sanitized(), nil
}

// Login writes a fresh, unverified session record for the user. The session
// always starts unverified, even when the user enrolled in 2FA previously.
func (s *Service) Login(ctx context.Context, user *users.User, sessionID string) (*LoginResponse, error) {
	if sessionID == "" {
		return nil, NoSessionErr
	}
	if err := s.repos.Users.Update(ctx, user.ID, users.Update{LastLoginAt: utils.Ptr(s.nowTime().UTC())}); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] Update lastLoginAt")
	}

	record := &sessions.Record{
		UserID:           user.ID,
		Email:            user.Email,
		Role:             user.Roles,
		Requires2FA:      true,
		Verified2FA:      false,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
	if err := s.repos.Sessions.Set(ctx, sessionID, record, s.ttl); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] Sessions.Set")
	}

	return &LoginResponse{
		ID:               user.ID,
		Email:            user.Email,
		Username:         user.Username,
		Name:             user.Name,
		Roles:            user.Roles,
		Requires2FA:      true,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}, nil
}

// Logout deletes the session record. Missing records are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) (*MessageResponse, error) {
	if sessionID != "" {
		if err := s.repos.Sessions.Delete(ctx, sessionID); err != nil {
			return nil, errors.Wrap(err, "[Service.Logout] Sessions.Delete")
		}
	}
	return &MessageResponse{Message: loggedOutMsg}, nil
}

// VerifyCode proves the second factor for a session with either a TOTP code
// or a backup code, then rewrites the record as verified with a fresh TTL.
func (s *Service) VerifyCode(ctx context.Context, sessionID, code string) (*VerifyResponse, error) {
	record, err := s.requireRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.lookupUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotConfiguredErr
	}

	res, err := s.engine.Validate(ctx, user.ID, code)
	switch {
	case errors.Is(err, twofactor.ErrNotConfigured):
		return nil, NotConfiguredErr
	case errors.Is(err, twofactor.ErrInvalidCode):
		return nil, InvalidCodeErr
	case err != nil:
		return nil, errors.Wrap(err, "[Service.VerifyCode] engine.Validate")
	}

	record.Verified2FA = true
	record.TwoFactorEnabled = user.TwoFactorEnabled
	if err := s.repos.Sessions.Set(ctx, sessionID, record, s.ttl); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCode] Sessions.Set")
	}

	if res.UsedBackupCode {
		log.Info().Str("userId", user.ID).Int("remaining", res.RemainingBackupCodes).Msg("backup code consumed")
	}
	return &VerifyResponse{
		Message:              verifiedMsg,
		UsedBackupCode:       res.UsedBackupCode,
		RemainingBackupCodes: res.RemainingBackupCodes,
	}, nil
}

// GenerateSecret provisions a pending TOTP secret for the session's user.
// An enrolled user must have verified this session first.
func (s *Service) GenerateSecret(ctx context.Context, sessionID string) (*twofactor.Setup, error) {
	record, user, err := s.setupSubject(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled && !record.Verified2FA {
		return nil, TwoFactorRequiredErr
	}
	setup, err := s.engine.GenerateSecret(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.GenerateSecret] engine.GenerateSecret")
	}
	return setup, nil
}

// EnableTwoFactor confirms the pending secret, switches 2FA on and marks the
// current session verified in the same call.
func (s *Service) EnableTwoFactor(ctx context.Context, userID, code, sessionID string) (*EnableResponse, error) {
	record, user, err := s.setupSubject(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user.ID != userID {
		return nil, UnauthorizedErr
	}
	if user.TwoFactorEnabled && !record.Verified2FA {
		return nil, TwoFactorRequiredErr
	}

	codes, err := s.engine.Enable(ctx, userID, code)
	switch {
	case errors.Is(err, twofactor.ErrNotConfigured):
		return nil, NotConfiguredErr
	case errors.Is(err, twofactor.ErrInvalidCode):
		return nil, InvalidCodeErr
	case err != nil:
		return nil, errors.Wrap(err, "[Service.EnableTwoFactor] engine.Enable")
	}

	if _, err := s.VerifyCode(ctx, sessionID, code); err != nil {
		return nil, err
	}
	return &EnableResponse{Message: enabledMsg, BackupCodes: codes}, nil
}

// ResolvedIdentity joins the session record with the stored user. It returns
// nil when either is missing and never gates on verification.
func (s *Service) ResolvedIdentity(ctx context.Context, sessionID string) (*Identity, error) {
	record, err := s.RawSessionData(ctx, sessionID)
	if err != nil || record == nil {
		return nil, err
	}
	user, err := s.lookupUser(ctx, record.UserID)
	if err != nil || user == nil {
		return nil, err
	}
	return &Identity{
		ID:               user.ID,
		Email:            user.Email,
		Username:         user.Username,
		Name:             user.Name,
		Roles:            user.Roles,
		TwoFactorEnabled: user.TwoFactorEnabled,
		IsActive:         user.IsActive,
		Requires2FA:      record.Requires2FA,
		Verified2FA:      record.Verified2FA,
	}, nil
}

// Refresh rewrites the session record unchanged with a fresh TTL.
func (s *Service) Refresh(ctx context.Context, sessionID string) (*MessageResponse, error) {
	record, err := s.requireRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sessions.Set(ctx, sessionID, record, s.ttl); err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] Sessions.Set")
	}
	log.Info().Str("sessionId", sessionID).Time("at", s.nowTime().UTC()).Msg("session refreshed")
	return &MessageResponse{Message: refreshedMsg}, nil
}

// RawSessionData reads the session record without a user join. It returns
// nil when no record exists.
func (s *Service) RawSessionData(ctx context.Context, sessionID string) (*sessions.Record, error) {
	if sessionID == "" {
		return nil, nil
	}
	record, err := s.repos.Sessions.Get(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RawSessionData] Sessions.Get")
	}
	return record, nil
}

// SendTwoFactorCode mails the current TOTP code when a sender is configured
// and the user has a secret. Otherwise it only reports that nothing was sent.
func (s *Service) SendTwoFactorCode(ctx context.Context, userID string) (*MessageResponse, error) {
	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, UserNotFoundErr
	}
	if s.sender == nil || !user.HasPendingSecret() {
		return &MessageResponse{Message: codeNotSentMsg}, nil
	}

	code, err := s.engine.CurrentCode(utils.Value(user.TwoFactorSecret))
	if err != nil {
		return nil, errors.Wrap(err, "[Service.SendTwoFactorCode] CurrentCode")
	}
	if err := s.sender.SendCode(ctx, user.Email, code); err != nil {
		return nil, errors.Wrap(err, "[Service.SendTwoFactorCode] SendCode")
	}
	return &MessageResponse{Message: codeSentMsg}, nil
}

// Profile returns the sanitized user.
func (s *Service) Profile(ctx context.Context, userID string) (*users.User, error) {
	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, UserNotFoundErr
	}
	return user.Sanitized(), nil
}

// ListUsers returns a page of sanitized users.
func (s *Service) ListUsers(ctx context.Context, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maximumListLimit)
	offset = max(offset, 0)

	list, err := s.repos.Users.List(ctx, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ListUsers] List")
	}
	out := make([]*users.User, 0, len(list))
	for _, u := range list {
		out = append(out, u.Sanitized())
	}
	return out, nil
}

func (s *Service) requireRecord(ctx context.Context, sessionID string) (*sessions.Record, error) {
	if sessionID == "" {
		return nil, NoSessionErr
	}
	record, err := s.RawSessionData(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, InvalidSessionErr
	}
	return record, nil
}

func (s *Service) setupSubject(ctx context.Context, sessionID string) (*sessions.Record, *users.User, error) {
	record, err := s.requireRecord(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.lookupUser(ctx, record.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, UserNotFoundErr
	}
	return record, user, nil
}

// lookupUser returns nil without error when the user does not exist.
func (s *Service) lookupUser(ctx context.Context, userID string) (*users.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.lookupUser] GetByID")
	}
	return user, nil
}
