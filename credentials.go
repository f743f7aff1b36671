package whisper

import "regexp"

// Credentials represents a submitted username/password pair
type Credentials struct {
	Username string
	Password string
}

// Signup validation limits. The store layer accepts anything (an empty
// username simply never matches a lookup); these apply at the HTTP edge.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 8
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSignup checks credentials for registration. Returns nil when
// acceptable, otherwise an AuthError naming the offending field.
func ValidateSignup(creds *Credentials) *AuthError {
	if creds.Username == "" {
		return NewAuthError(ErrCodeMissingField, "Username is required", "username")
	}
	if creds.Password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(creds.Username) < MinUsernameLength || len(creds.Username) > MaxUsernameLength {
		return NewAuthError(ErrCodeInvalidUsername, "Username must be 3-20 characters", "username")
	}
	if !usernameRegex.MatchString(creds.Username) {
		return NewAuthError(ErrCodeInvalidUsername, "Username can only contain letters, numbers, underscores, and hyphens", "username")
	}
	if len(creds.Password) < MinPasswordLength {
		return NewAuthError(ErrCodeWeakPassword, "Password must be at least 8 characters", "password")
	}
	return nil
}
