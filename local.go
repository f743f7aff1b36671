package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// HandleUserFunc is called by a strategy after it has authenticated a user.
// token is nil for local auth (no OAuth tokens).
type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, user *User, w http.ResponseWriter, r *http.Request)

// AuthErrorHandler lets an app take over error rendering (e.g. redirect
// back to a form). Returning false falls through to the default JSON error.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// LocalAuth is the username/password authentication strategy
type LocalAuth struct {
	// Store holds the user records
	Store UserStore

	// Hasher derives and verifies password digests
	Hasher *PasswordHasher

	// Provider name (defaults to "local")
	Provider string

	// Form field names
	UsernameField string
	PasswordField string

	// Handler called after successful authentication
	HandleUser HandleUserFunc

	// RateLimiter throttles login attempts, keyed by client IP + username.
	// Nil disables throttling.
	RateLimiter RateLimiter

	// OnLoginError is called when login fails. If nil, returns JSON error.
	OnLoginError AuthErrorHandler

	// OnSignupError is called when signup fails. If nil, returns JSON error.
	OnSignupError AuthErrorHandler
}

// Register creates a new local user. The plaintext never reaches the store:
// it is hashed here and discarded.
func (a *LocalAuth) Register(ctx context.Context, username, password string) (*User, error) {
	digest, err := a.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return a.Store.CreateLocalUser(ctx, username, digest)
}

// Authenticate verifies a username/password pair. Unknown user, external
// only account and wrong password all return ErrInvalidCredentials - the
// outcomes are not distinguishable by the caller, and a dummy hash
// comparison keeps the miss paths from being faster than the mismatch path.
func (a *LocalAuth) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := a.Store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.Hasher.VerifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		a.Hasher.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if !a.Hasher.Verify(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil || a.Hasher == nil {
		http.Error(w, `{"error": "Login not configured"}`, http.StatusInternalServerError)
		return
	}

	username, password, err := a.parseLoginForm(r)
	if err != nil {
		authErr := NewAuthError(ErrCodeMissingField, err.Error(), "username")
		a.handleLoginError(authErr, w, r)
		return
	}

	if a.RateLimiter != nil {
		key := ClientIP(r) + ":" + username
		if !a.RateLimiter.Allow(key) {
			authErr := NewAuthError(ErrCodeRateLimited, "Too many login attempts", "")
			a.handleLoginError(authErr, w, r)
			return
		}
	}

	user, err := a.Authenticate(r.Context(), username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			// store trouble, not a bad login
			log.Println("error validating user: ", err)
			http.Error(w, `{"error": "Something went wrong"}`, http.StatusInternalServerError)
			return
		}
		authErr := NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password")
		a.handleLoginError(authErr, w, r)
		return
	}

	a.HandleUser("local", a.getProvider(), nil, user, w, r)
}

// HandleSignup processes user registration
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil || a.Hasher == nil {
		http.Error(w, `{"error": "Signup not configured"}`, http.StatusInternalServerError)
		return
	}

	creds, parseErr := a.parseSignupForm(r)
	if parseErr != nil {
		a.handleSignupError(parseErr, w, r)
		return
	}

	if authErr := ValidateSignup(creds); authErr != nil {
		a.handleSignupError(authErr, w, r)
		return
	}

	user, err := a.Register(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			authErr := NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username")
			a.handleSignupError(authErr, w, r)
			return
		}
		log.Println("error creating user: ", err)
		authErr := NewAuthError("create_failed", fmt.Sprintf("Failed to create user: %s", err.Error()), "")
		a.handleSignupError(authErr, w, r)
		return
	}

	// Log the new user in right away
	a.HandleUser("local", a.getProvider(), nil, user, w, r)
}

func (a *LocalAuth) parseLoginForm(r *http.Request) (username, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	usernameField := a.getUsernameField()
	passwordField := a.getPasswordField()

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err = r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		username = r.FormValue(usernameField)
		password = r.FormValue(passwordField)
	} else {
		var data map[string]any
		if err = json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		if u, ok := data[usernameField].(string); ok {
			username = u
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	}

	if username == "" || password == "" {
		return "", "", fmt.Errorf("username and password required")
	}

	return username, password, nil
}

func (a *LocalAuth) parseSignupForm(r *http.Request) (*Credentials, *AuthError) {
	contentType := r.Header.Get("Content-Type")
	usernameField := a.getUsernameField()
	passwordField := a.getPasswordField()

	var username, password string
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, NewAuthError("parse_error", "Error parsing form", "")
		}
		username = r.FormValue(usernameField)
		password = r.FormValue(passwordField)
	} else {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, NewAuthError("parse_error", "Invalid post body", "")
		}
		if u, ok := data[usernameField].(string); ok {
			username = u
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	}

	return &Credentials{Username: username, Password: password}, nil
}

func (a *LocalAuth) getProvider() string {
	if a.Provider != "" {
		return a.Provider
	}
	return "local"
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

// handleLoginError handles login errors using the configured handler or default JSON
func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	statusCode := http.StatusUnauthorized
	switch err.Code {
	case ErrCodeMissingField, ErrCodeInvalidUsername:
		statusCode = http.StatusBadRequest
	case ErrCodeRateLimited:
		statusCode = http.StatusTooManyRequests
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(err)
}

// handleSignupError handles signup errors using the configured handler or default JSON
func (a *LocalAuth) handleSignupError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	statusCode := http.StatusBadRequest
	if err.Code == ErrCodeUsernameTaken {
		statusCode = http.StatusConflict
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(err)
}
