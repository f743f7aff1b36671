package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	wh "github.com/whisperlabs/whisper"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for users. Username and (Provider, Subject)
// each carry a unique index - those indexes, not application checks, are
// what make identity keys unique.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"uniqueIndex;size:64"`
	Provider     *string   `gorm:"size:32;uniqueIndex:idx_provider_subject"`
	Subject      *string   `gorm:"size:128;uniqueIndex:idx_provider_subject"`
	PasswordHash *string   `gorm:"size:128"`
	Secret       *string   `gorm:"size:4096"`
	Profile      JSONMap   `gorm:"type:jsonb"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *wh.User {
	return &wh.User{
		ID:           m.ID,
		Username:     m.Username,
		Provider:     m.Provider,
		Subject:      m.Subject,
		PasswordHash: m.PasswordHash,
		Secret:       m.Secret,
		Profile:      m.Profile,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func UserToModel(u *wh.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Provider:     u.Provider,
		Subject:      u.Subject,
		PasswordHash: u.PasswordHash,
		Secret:       u.Secret,
		Profile:      JSONMap(u.Profile),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
