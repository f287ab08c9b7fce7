package auth

import "errors"

// ErrorKind classifies an authentication failure so the transport layer can
// map it to a protocol status without inspecting messages.
type ErrorKind string

const (
	KindNoSession         ErrorKind = "NoSession"
	KindInvalidSession    ErrorKind = "InvalidSession"
	KindUserNotFound      ErrorKind = "UserNotFound"
	KindTwoFactorRequired ErrorKind = "TwoFactorRequired"
	KindAccountInactive   ErrorKind = "AccountInactive"
	KindInvalidCode       ErrorKind = "InvalidCode"
	KindNotConfigured     ErrorKind = "NotConfigured"
	KindDuplicateUser     ErrorKind = "DuplicateUser"
	KindUnauthorized      ErrorKind = "Unauthorized"
)

// Error is an expected, non-fatal authentication outcome. Message is safe to
// show to clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind so a custom message still compares equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	NoSessionErr         = &Error{Kind: KindNoSession, Message: "No session found"}
	InvalidSessionErr    = &Error{Kind: KindInvalidSession, Message: "Invalid session"}
	UserNotFoundErr      = &Error{Kind: KindUserNotFound, Message: "User not found"}
	TwoFactorRequiredErr = &Error{Kind: KindTwoFactorRequired, Message: "Two-factor authentication required"}
	AccountInactiveErr   = &Error{Kind: KindAccountInactive, Message: "Account is inactive"}
	InvalidCodeErr       = &Error{Kind: KindInvalidCode, Message: "Invalid two-factor code"}
	NotConfiguredErr     = &Error{Kind: KindNotConfigured, Message: "Two-factor authentication not set up"}
	DuplicateUserErr     = &Error{Kind: KindDuplicateUser, Message: "User with this email or username already exists"}
	UnauthorizedErr      = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
)

// InvalidCredentialsErr is returned for a failed login. It never says whether
// the email or the password was wrong.
var InvalidCredentialsErr = &Error{Kind: KindUnauthorized, Message: "Invalid credentials"}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
