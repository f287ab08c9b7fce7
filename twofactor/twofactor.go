// Package twofactor owns the TOTP secret lifecycle and the single-use backup
// codes that stand in for a TOTP code.
package twofactor

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"hash/fnv"
	"image/png"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	BackupCodeCount  = 5
	backupCodeLength = 10
	backupAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 200
	lockStripe = 64
)

var (
	ErrNotConfigured = errors.New("two-factor authentication not set up")
	ErrInvalidCode   = errors.New("invalid two-factor code")
)

var validateOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Setup is returned when a new secret is provisioned.
type Setup struct {
	Secret        string `json:"secret"`
	OTPAuthURL    string `json:"otpauthURL"`
	QRCodeDataURL string `json:"qrCodeDataURL"`
}

// Result describes how a code was accepted.
type Result struct {
	UsedBackupCode       bool
	RemainingBackupCodes int
}

// Engine generates and validates second factors. Secrets and backup codes
// are persisted on the user record through the UserRepo.
type Engine struct {
	users   users.UserRepo
	issuer  string
	nowTime func() time.Time
	locks   [lockStripe]sync.Mutex
}

// EngineOption defines a function type to modify the Engine instance.
type EngineOption func(*Engine)

// WithNowTime sets the clock used for TOTP windows (primarily for testing)
func WithNowTime(nowFunc func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

func NewEngine(userRepo users.UserRepo, issuer string, options ...EngineOption) (*Engine, error) {
	if userRepo == nil {
		return nil, pkgerrors.New("[twofactor.NewEngine] Users repo is required")
	}
	if issuer == "" {
		return nil, pkgerrors.New("[twofactor.NewEngine] issuer is required")
	}
	e := &Engine{
		users:   userRepo,
		issuer:  issuer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// GenerateSecret provisions a new pending secret for the user, overwriting
// any previous pending secret, and returns the provisioning URI and QR code.
// An enrolled user keeps their confirmed secret until Enable accepts a code
// for the new one.
func (e *Engine) GenerateSecret(ctx context.Context, user *users.User) (*Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.GenerateSecret] totp.Generate")
	}

	update := users.Update{TwoFactorSecret: utils.Ptr(key.Secret())}
	if user.TwoFactorEnabled {
		update = users.Update{TwoFactorNextSecret: utils.Ptr(key.Secret())}
	}
	if err := e.users.Update(ctx, user.ID, update); err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.GenerateSecret] users.Update")
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.GenerateSecret] qrDataURL")
	}

	return &Setup{
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		QRCodeDataURL: qr,
	}, nil
}

// VerifyCode checks a TOTP code against the secret, tolerating one period of
// clock skew either side.
func (e *Engine) VerifyCode(secret, code string) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.nowTime().UTC(), validateOpts)
	return err == nil && ok
}

// CurrentCode returns the TOTP code valid now for the secret.
func (e *Engine) CurrentCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, e.nowTime().UTC(), validateOpts)
}

// Enable confirms control of the pending secret, then marks two-factor as
// enabled and issues a fresh set of backup codes which are returned.
func (e *Engine) Enable(ctx context.Context, userID, code string) ([]string, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.Enable] users.GetByID")
	}
	secret := user.SecretToConfirm()
	if secret == "" {
		return nil, ErrNotConfigured
	}
	if !e.VerifyCode(secret, code) {
		return nil, ErrInvalidCode
	}

	codes, err := GenerateBackupCodes()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.Enable] GenerateBackupCodes")
	}
	err = e.users.Update(ctx, userID, users.Update{
		TwoFactorSecret:      utils.Ptr(secret),
		TwoFactorNextSecret:  utils.Ptr(""),
		TwoFactorEnabled:     utils.Ptr(true),
		TwoFactorBackupCodes: utils.Ptr(users.EncodeBackupCodes(codes)),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Engine.Enable] users.Update")
	}
	return codes, nil
}

// Validate accepts either a TOTP code or an unused backup code. A matched
// backup code is removed and the removal persisted before returning.
// Consumption is serialized per user within this process only; two replicas
// can still both accept the same backup code.
func (e *Engine) Validate(ctx context.Context, userID, code string) (Result, error) {
	mu := e.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "[Engine.Validate] users.GetByID")
	}
	if !user.HasPendingSecret() {
		return Result{}, ErrNotConfigured
	}

	codes, err := user.BackupCodes()
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "[Engine.Validate] BackupCodes")
	}

	if e.VerifyCode(utils.Value(user.TwoFactorSecret), code) {
		return Result{RemainingBackupCodes: len(codes)}, nil
	}

	idx, ok := matchBackupCode(codes, code)
	if !ok {
		return Result{}, ErrInvalidCode
	}
	remaining := append(codes[:idx:idx], codes[idx+1:]...)
	if err := e.users.Update(ctx, userID, users.Update{TwoFactorBackupCodes: utils.Ptr(users.EncodeBackupCodes(remaining))}); err != nil {
		return Result{}, pkgerrors.Wrap(err, "[Engine.Validate] users.Update")
	}
	return Result{UsedBackupCode: true, RemainingBackupCodes: len(remaining)}, nil
}

func (e *Engine) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &e.locks[h.Sum32()%lockStripe]
}

// GenerateBackupCodes returns a new set of uppercase alphanumeric codes.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, BackupCodeCount)
	max := big.NewInt(int64(len(backupAlphabet)))
	for i := range codes {
		var sb strings.Builder
		for j := 0; j < backupCodeLength; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			sb.WriteByte(backupAlphabet[n.Int64()])
		}
		codes[i] = sb.String()
	}
	return codes, nil
}

// matchBackupCode compares every stored code in constant time.
func matchBackupCode(codes []string, input string) (int, bool) {
	candidate := []byte(strings.ToUpper(strings.TrimSpace(input)))
	if len(candidate) == 0 {
		return -1, false
	}
	found := -1
	for i, c := range codes {
		if subtle.ConstantTimeCompare([]byte(c), candidate) == 1 && found < 0 {
			found = i
		}
	}
	return found, found >= 0
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
