package whisper

import (
	"context"
	"errors"
	"time"

	"github.com/alexedwards/scs/v2"
)

// SessionManager owns the login session lifecycle. It wraps an scs session
// manager: session data lives server-side keyed by an opaque token, the
// client only ever holds the token cookie. Only the user ID is ever
// serialized into a session - never credential material.
type SessionManager struct {
	*scs.SessionManager

	// UserIDKey is the session key the logged-in user ID is stored under
	UserIDKey string
}

// NewSessionManager creates a session manager with the given session lifetime
func NewSessionManager(lifetime time.Duration) *SessionManager {
	sm := scs.New()
	if lifetime > 0 {
		sm.Lifetime = lifetime
	}
	return &SessionManager{SessionManager: sm, UserIDKey: "loggedInUserId"}
}

// Establish records a successful authentication. The session token is
// renewed first so every login gets a fresh token - tokens are never reused
// across logins or users.
func (m *SessionManager) Establish(ctx context.Context, user *User) error {
	if err := m.RenewToken(ctx); err != nil {
		return err
	}
	m.Put(ctx, m.UserIDKey, user.ID)
	return nil
}

// Resolve returns the logged-in user ID for the current session, or ""
// when anonymous. Missing, expired and tampered sessions are all
// anonymous, never errors.
func (m *SessionManager) Resolve(ctx context.Context) string {
	return m.GetString(ctx, m.UserIDKey)
}

// ResolveUser resolves the session and re-fetches the live user record.
// The record is never cached across requests: mutable fields (the secret)
// must be read fresh. A session pointing at a since-deleted user is
// anonymous, not an error.
func (m *SessionManager) ResolveUser(ctx context.Context, store UserStore) (*User, error) {
	userId := m.Resolve(ctx)
	if userId == "" {
		return nil, nil
	}
	user, err := store.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// Logout destroys the current session. Destroying an already-destroyed or
// never-established session is a no-op, so logout is idempotent.
func (m *SessionManager) Logout(ctx context.Context) error {
	return m.Destroy(ctx)
}
