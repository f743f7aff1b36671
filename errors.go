package whisper

import "errors"

// Sentinel errors returned by stores and strategies.
var (
	// ErrDuplicateIdentity is returned when a registration would reuse an
	// identity key (username or provider subject) that is already taken.
	ErrDuplicateIdentity = errors.New("identity already registered")

	// ErrUserNotFound is returned by store lookups. It must never be
	// surfaced to a login caller as-is - failed logins are uniform.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is the single undifferentiated login failure.
	// Unknown user, password-less account and wrong password all map here.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Error codes used in AuthError responses
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeProviderError   = "provider_error"
)

// AuthError is a structured, user-facing authentication error. Code is a
// stable machine-readable identifier, Field names the offending form field
// (may be empty).
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a new AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}
