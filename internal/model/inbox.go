package model

import (
	"time"

	"gorm.io/datatypes"
)

// Inbox connection status values reported by the WhatsApp gateway.
const (
	InboxStatusConnected    = "CONNECTED"
	InboxStatusDisconnected = "DISCONNECTED"
	InboxStatusConnecting   = "CONNECTING"
)

// Inbox represents a connected WhatsApp channel instance. Every incoming
// event carries the instance name that maps to exactly one inbox.
type Inbox struct {
	// ID is the internal database primary key.
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// InboxID is the external identifier for this inbox.
	InboxID string `json:"inbox_id" gorm:"column:inbox_id;uniqueIndex" validate:"required"`
	// Instance is the gateway instance name used to route events to this inbox.
	Instance string `json:"instance" gorm:"column:instance;uniqueIndex" validate:"required"`
	// Name is a user-defined label for the inbox.
	Name string `json:"name,omitempty" gorm:"column:name"`
	// PhoneNumber is the WhatsApp number registered for this inbox.
	PhoneNumber string `json:"phone_number,omitempty" gorm:"column:phone_number"`
	// Status is the last known gateway connection state.
	Status string `json:"status,omitempty" gorm:"column:status"`
	// AIEnabled gates automatic agent replies for conversations in this inbox.
	AIEnabled bool `json:"ai_enabled,omitempty" gorm:"column:ai_enabled;default:true"`
	// AccountID identifies the account/tenant this inbox belongs to.
	AccountID    string         `json:"account_id,omitempty" gorm:"column:account_id;index"`
	LastMetadata datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Inbox) TableName() string {
	return "inboxes"
}

// InboxUpdateColumns returns the column names that may change during an
// upsert. Excludes primary key, inbox_id, instance, account_id and created_at.
func InboxUpdateColumns() []string {
	return []string{
		"name",
		"phone_number",
		"status",
		"ai_enabled",
		"last_metadata",
		"updated_at",
	}
}
