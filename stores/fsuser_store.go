package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	wh "github.com/whisperlabs/whisper"
)

// FSUserStore stores users as JSON files under StoragePath:
//
//	users/<id>.json          the record itself
//	usernames/<name>.link    username -> id, O_EXCL-created
//	subjects/<key>.link      provider subject -> id, O_EXCL-created
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(userId string) string {
	return filepath.Join(s.StoragePath, "users", userId+".json")
}

func (s *FSUserStore) usernamePath(username string) string {
	return filepath.Join(s.StoragePath, "usernames", url.PathEscape(username)+".link")
}

func (s *FSUserStore) subjectPath(provider, subject string) string {
	key := url.PathEscape(provider) + "~" + url.PathEscape(subject)
	return filepath.Join(s.StoragePath, "subjects", key+".link")
}

func (s *FSUserStore) CreateLocalUser(ctx context.Context, username, passwordHash string) (*wh.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &wh.User{
		ID:           wh.GenerateUserId(),
		Username:     &username,
		PasswordHash: &passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	// the link file is the uniqueness constraint
	claimed, err := claimLink(s.usernamePath(username), user.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, wh.ErrDuplicateIdentity
	}

	if err := s.saveUser(user); err != nil {
		os.Remove(s.usernamePath(username))
		return nil, err
	}
	return user, nil
}

func (s *FSUserStore) GetUserById(ctx context.Context, userId string) (*wh.User, error) {
	data, err := os.ReadFile(s.userPath(userId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", wh.ErrUserNotFound, userId)
		}
		return nil, err
	}

	var user fsUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return user.toUser(), nil
}

func (s *FSUserStore) GetUserByUsername(ctx context.Context, username string) (*wh.User, error) {
	userId, err := readLink(s.usernamePath(username))
	if err != nil {
		return nil, err
	}
	if userId == "" {
		return nil, fmt.Errorf("%w: %s", wh.ErrUserNotFound, username)
	}
	return s.GetUserById(ctx, userId)
}

func (s *FSUserStore) EnsureExternalUser(ctx context.Context, provider, subject string, profile map[string]any) (*wh.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	linkPath := s.subjectPath(provider, subject)
	if userId, err := readLink(linkPath); err != nil {
		return nil, false, err
	} else if userId != "" {
		user, err := s.GetUserById(ctx, userId)
		return user, false, err
	}

	user := &wh.User{
		ID:        wh.GenerateUserId(),
		Provider:  &provider,
		Subject:   &subject,
		Profile:   profile,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	claimed, err := claimLink(linkPath, user.ID)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		// lost the race with a concurrent first login; re-read the winner
		userId, err := readLink(linkPath)
		if err != nil || userId == "" {
			return nil, false, fmt.Errorf("subject link unreadable after conflict: %w", err)
		}
		existing, err := s.GetUserById(ctx, userId)
		return existing, false, err
	}

	if err := s.saveUser(user); err != nil {
		os.Remove(linkPath)
		return nil, false, err
	}
	return user, true, nil
}

func (s *FSUserStore) SetSecret(ctx context.Context, userId, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.GetUserById(ctx, userId)
	if err != nil {
		return err
	}
	user.Secret = &secret
	user.UpdatedAt = time.Now()
	return s.saveUser(user)
}

func (s *FSUserStore) ListSecrets(ctx context.Context) ([]wh.SecretEntry, error) {
	dir := filepath.Join(s.StoragePath, "users")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []wh.SecretEntry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var user fsUser
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, err
		}
		if user.Secret == nil {
			continue
		}
		out = append(out, wh.SecretEntry{
			Identity: user.toUser().DisplayIdentity(),
			Secret:   *user.Secret,
		})
	}
	return out, nil
}

func (s *FSUserStore) saveUser(user *wh.User) error {
	path := s.userPath(user.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fromUser(user), "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

// fsUser is the on-disk record. The hash and secret need explicit json
// tags here - the domain type deliberately refuses to serialize them.
type fsUser struct {
	ID           string         `json:"id"`
	Username     *string        `json:"username,omitempty"`
	Provider     *string        `json:"provider,omitempty"`
	Subject      *string        `json:"subject,omitempty"`
	PasswordHash *string        `json:"password_hash,omitempty"`
	Secret       *string        `json:"secret,omitempty"`
	Profile      map[string]any `json:"profile,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (u *fsUser) toUser() *wh.User {
	return &wh.User{
		ID:           u.ID,
		Username:     u.Username,
		Provider:     u.Provider,
		Subject:      u.Subject,
		PasswordHash: u.PasswordHash,
		Secret:       u.Secret,
		Profile:      u.Profile,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromUser(user *wh.User) *fsUser {
	return &fsUser{
		ID:           user.ID,
		Username:     user.Username,
		Provider:     user.Provider,
		Subject:      user.Subject,
		PasswordHash: user.PasswordHash,
		Secret:       user.Secret,
		Profile:      user.Profile,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
