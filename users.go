package whisper

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// User is a single account. Identity is either a unique username (local
// accounts), a unique (Provider, Subject) pair (external accounts), or both
// once credentials are linked. At least one identity key is always set.
type User struct {
	ID           string         `json:"id"`
	Username     *string        `json:"username,omitempty"`
	Provider     *string        `json:"provider,omitempty"`
	Subject      *string        `json:"subject,omitempty"`
	PasswordHash *string        `json:"-"`
	Secret       *string        `json:"-"`
	Profile      map[string]any `json:"profile,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsLocal reports whether the account can authenticate with a password
func (u *User) IsLocal() bool {
	return u.PasswordHash != nil
}

// DisplayIdentity returns the identity key shown in listings: the username
// when set, otherwise "provider:subject".
func (u *User) DisplayIdentity() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.Provider != nil && u.Subject != nil {
		return *u.Provider + ":" + *u.Subject
	}
	return u.ID
}

// SecretEntry is one row of the public secrets listing. It carries the
// display identity and the secret, and nothing else.
type SecretEntry struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// UserStore manages user accounts and their secrets
type UserStore interface {
	// CreateLocalUser creates a new local user with the given (already
	// hashed) password. Returns ErrDuplicateIdentity if the username is
	// taken; uniqueness is constraint-backed, not check-then-create.
	CreateLocalUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserById retrieves a user by its ID
	GetUserById(ctx context.Context, userId string) (*User, error)

	// GetUserByUsername retrieves a user by its unique username
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// EnsureExternalUser finds or creates the user for an external subject.
	// At most one record per (provider, subject) exists even under
	// concurrent first-time logins: implementations create and on conflict
	// re-read. The bool reports whether a record was created.
	EnsureExternalUser(ctx context.Context, provider, subject string, profile map[string]any) (*User, bool, error)

	// SetSecret overwrites the user's secret (last write wins)
	SetSecret(ctx context.Context, userId, secret string) error

	// ListSecrets returns an entry for every user whose secret has been
	// submitted. Users without a secret never appear.
	ListSecrets(ctx context.Context) ([]SecretEntry, error)
}

// GenerateUserId generates a cryptographically secure user ID
func GenerateUserId() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
