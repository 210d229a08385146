package user

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Role string

const (
	RoleViewer  Role = "viewer"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

// Preferences is an opaque settings blob, stored as a single JSON column.
type Preferences struct {
	Language             string `json:"language"`
	Theme                string `json:"theme"`
	Autoplay             bool   `json:"autoplay"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	EmailNotifications   bool   `json:"email_notifications"`
	ContentFilter        string `json:"content_filter"`
	PreferredQuality     string `json:"preferred_quality"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Language:             "en",
		Theme:                "light",
		Autoplay:             true,
		NotificationsEnabled: true,
		EmailNotifications:   true,
		ContentFilter:        "moderate",
		PreferredQuality:     "auto",
	}
}

func (p Preferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Preferences) Scan(value interface{}) error {
	if value == nil {
		*p = DefaultPreferences()
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("unsupported preferences column type")
	}
}

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:30;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"not null"`

	IsEmailVerified        bool `gorm:"not null;default:false"`
	EmailVerificationToken *string

	Role   Role   `gorm:"size:16;not null;default:viewer"`
	Status Status `gorm:"size:16;not null;default:active"`

	FullName    *string `gorm:"size:100"`
	Bio         *string `gorm:"size:500"`
	AvatarURL   *string
	Country     *string `gorm:"size:64"`
	Timezone    *string `gorm:"size:64"`
	DateOfBirth *time.Time

	Preferences Preferences `gorm:"type:jsonb"`

	ChannelID          *string `gorm:"size:36;uniqueIndex"`
	ChannelName        *string `gorm:"size:100"`
	ChannelDescription *string `gorm:"size:1000"`

	FailedLoginCount int  `gorm:"not null;default:0"`
	Locked           bool `gorm:"not null;default:false"`
	LockUntil        *time.Time
	LastLoginAttempt *time.Time
	LastLogin        *time.Time

	TFAEnabled    bool    `gorm:"not null;default:false"`
	TFASecret     *string `gorm:"size:64"`
	TFASetupAt    *time.Time
	TFAVerifiedAt *time.Time

	BackupCodes []BackupCode `gorm:"constraint:OnDelete:CASCADE"`
	OAuthLinks  []OAuthLink  `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsChannelOwner() bool {
	return u.ChannelID != nil
}

// BackupCode stores the SHA-256 hash of a single-use recovery code.
// Rows are deleted on use, never flagged.
type BackupCode struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   string `gorm:"size:36;not null;index;uniqueIndex:idx_backup_codes_user_hash"`
	CodeHash string `gorm:"size:64;not null;uniqueIndex:idx_backup_codes_user_hash"`

	CreatedAt time.Time
}

func (BackupCode) TableName() string {
	return "backup_codes"
}

// OAuthLink maps a provider subject id to a local user.
// At most one link per provider per user.
type OAuthLink struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:36;not null;uniqueIndex:idx_oauth_links_user_provider"`
	Provider  string `gorm:"size:32;not null;uniqueIndex:idx_oauth_links_user_provider;uniqueIndex:idx_oauth_links_provider_subject"`
	SubjectID string `gorm:"size:255;not null;uniqueIndex:idx_oauth_links_provider_subject"`

	CreatedAt time.Time
}

func (OAuthLink) TableName() string {
	return "oauth_links"
}

// Subscription is a subscriber -> channel-owner edge.
type Subscription struct {
	ID            uint   `gorm:"primaryKey"`
	SubscriberID  string `gorm:"size:36;not null;uniqueIndex:idx_subscriptions_edge"`
	ChannelUserID string `gorm:"size:36;not null;uniqueIndex:idx_subscriptions_edge;index"`

	CreatedAt time.Time
}

func (Subscription) TableName() string {
	return "subscriptions"
}
