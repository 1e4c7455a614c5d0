package accounts

import (
	"strings"
	"time"
)

// Account is the credential record behind a signed-in user.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

// Profile holds the public details of an account. Its ID equals the account ID.
type Profile struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
	FullName  *string   `gorm:"column:full_name;size:200"`
	AvatarURL *string   `gorm:"column:avatar_url;size:512"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// DisplayName returns the full name, or an empty string when unset.
func (p Profile) DisplayName() string {
	if p.FullName == nil {
		return ""
	}
	return *p.FullName
}

// Avatar returns the avatar URL, or an empty string when unset.
func (p Profile) Avatar() string {
	if p.AvatarURL == nil {
		return ""
	}
	return *p.AvatarURL
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func optionalString(value string) *string {
	trimmed := normalize(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
