package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation represents a message thread between an inbox and a contact.
// A thread is identified by the remote JID within a given inbox.
type Conversation struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// ConversationID is the external identifier for this conversation.
	ConversationID string `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex" validate:"required"`
	// ExternalThreadID is the remote JID of the thread on the gateway side,
	// unique per inbox.
	ExternalThreadID string `json:"external_thread_id" gorm:"column:external_thread_id;uniqueIndex:idx_conversations_thread_inbox" validate:"required"`
	// InboxID references the owning inbox.
	InboxID int64 `json:"inbox_id" gorm:"column:inbox_id;uniqueIndex:idx_conversations_thread_inbox;index" validate:"required"`
	// ContactID references the participating contact.
	ContactID int64 `json:"contact_id" gorm:"column:contact_id;index" validate:"required"`
	// AccountID identifies the account/tenant this conversation belongs to.
	AccountID string `json:"account_id,omitempty" gorm:"column:account_id;index"`
	// AgentID references the AI agent assigned to the thread, zero when
	// no agent has been routed yet.
	AgentID int64 `json:"agent_id,omitempty" gorm:"column:agent_id;index"`
	// IsGroup marks group threads, which never receive automatic replies.
	IsGroup bool `json:"is_group,omitempty" gorm:"column:is_group"`
	// Status is the operator-facing lifecycle state of the thread.
	Status string `json:"status,omitempty" gorm:"column:status;default:OPEN" validate:"omitempty,oneof=OPEN PENDING RESOLVED"`
	// UnreadCount is the number of inbound messages not yet read by an operator.
	UnreadCount int32 `json:"unread_count,omitempty" gorm:"column:unread_count"`
	// AIEnabled gates automatic agent replies for this thread specifically.
	AIEnabled bool `json:"ai_enabled,omitempty" gorm:"column:ai_enabled;default:true"`
	// LastMessageAt is the timestamp of the newest message in the thread.
	LastMessageAt *time.Time     `json:"last_message_at,omitempty" gorm:"column:last_message_at;index"`
	LastMessage   datatypes.JSON `json:"last_message,omitempty" gorm:"type:jsonb;column:last_message"`
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversations"
}

// Conversation lifecycle states.
const (
	ConversationStatusOpen     = "OPEN"
	ConversationStatusPending  = "PENDING"
	ConversationStatusResolved = "RESOLVED"
)

// ConversationUpdateColumns returns the column names that may change during
// an upsert. Excludes primary key, conversation_id, external_thread_id,
// inbox_id, account_id and created_at. Unread count, status and agent
// assignment are excluded too: they are mutated through dedicated updates,
// never by the upsert path.
func ConversationUpdateColumns() []string {
	return []string{
		"contact_id",
		"is_group",
		"last_message_at",
		"last_message",
		"updated_at",
	}
}
