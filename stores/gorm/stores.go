package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	wh "github.com/whisperlabs/whisper"
)

// AutoMigrate runs database migrations for the whisper tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements wh.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateLocalUser(ctx context.Context, username, passwordHash string) (*wh.User, error) {
	model := &UserModel{
		ID:           wh.GenerateUserId(),
		Username:     &username,
		PasswordHash: &passwordHash,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, wh.ErrDuplicateIdentity
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*wh.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", wh.ErrUserNotFound, userId)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*wh.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", wh.ErrUserNotFound, username)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) EnsureExternalUser(ctx context.Context, provider, subject string, profile map[string]any) (*wh.User, bool, error) {
	model := &UserModel{
		ID:       wh.GenerateUserId(),
		Provider: &provider,
		Subject:  &subject,
		Profile:  JSONMap(profile),
	}

	// Create and let the unique index arbitrate concurrent first logins;
	// losers fall through to the re-read below.
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "subject"}},
			DoNothing: true,
		}).
		Create(model)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0

	var existing UserModel
	if err := s.db.WithContext(ctx).
		First(&existing, "provider = ? AND subject = ?", provider, subject).Error; err != nil {
		return nil, false, err
	}
	return existing.ToUser(), created, nil
}

func (s *UserStore) SetSecret(ctx context.Context, userId, secret string) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userId).
		Update("secret", secret)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", wh.ErrUserNotFound, userId)
	}
	return nil
}

func (s *UserStore) ListSecrets(ctx context.Context) ([]wh.SecretEntry, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).
		Where("secret IS NOT NULL").
		Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]wh.SecretEntry, len(models))
	for i, m := range models {
		entries[i] = wh.SecretEntry{
			Identity: m.ToUser().DisplayIdentity(),
			Secret:   *m.Secret,
		}
	}
	return entries, nil
}

// isUniqueViolation detects a unique-index conflict. gorm translates it on
// dialects configured with TranslateError; the string check covers sqlite
// without it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
