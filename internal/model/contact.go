package model

import (
	"time"

	"gorm.io/datatypes"
)

// Contact represents a person (or group) we exchanged messages with,
// deduplicated per account by phone number.
type Contact struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// ContactID is the external identifier for this contact.
	ContactID string `json:"contact_id" gorm:"column:contact_id;uniqueIndex" validate:"required"`
	// PhoneNumber is the canonical phone identity, unique within the account.
	PhoneNumber string `json:"phone_number" gorm:"column:phone_number;uniqueIndex:idx_contacts_account_phone" validate:"required"`
	// AccountID identifies the account/tenant this contact belongs to.
	AccountID string `json:"account_id,omitempty" gorm:"column:account_id;uniqueIndex:idx_contacts_account_phone"`
	// PushName is the profile name the contact advertises on WhatsApp.
	PushName string `json:"push_name,omitempty" gorm:"column:push_name"`
	// CustomName is an operator-assigned display name that overrides PushName.
	CustomName string `json:"custom_name,omitempty" gorm:"column:custom_name"`
	// AvatarURL is the last fetched profile picture URL, best effort.
	AvatarURL string `json:"avatar_url,omitempty" gorm:"column:avatar_url"`
	// IsGroup marks contacts that are actually group chats.
	IsGroup      bool           `json:"is_group,omitempty" gorm:"column:is_group"`
	LastMetadata datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Contact) TableName() string {
	return "contacts"
}

// DisplayName returns the operator-assigned name when set, otherwise the
// WhatsApp push name, otherwise the phone number.
func (c *Contact) DisplayName() string {
	if c.CustomName != "" {
		return c.CustomName
	}
	if c.PushName != "" {
		return c.PushName
	}
	return c.PhoneNumber
}

// ContactUpdateColumns returns the column names that may change during an
// upsert. Excludes primary key, contact_id, phone_number, account_id and
// created_at. Avatar and custom name are deliberately absent: they are only
// written through their dedicated paths so an incoming event cannot clobber
// an operator edit.
func ContactUpdateColumns() []string {
	return []string{
		"push_name",
		"is_group",
		"last_metadata",
		"updated_at",
	}
}
