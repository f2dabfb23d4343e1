package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message sender kinds. CONTACT is an inbound message from the remote party,
// USER is an outbound message typed by a human operator (seen via fromMe
// echoes), AI_AGENT is an automatic reply generated by this service.
const (
	MessageSenderContact = "CONTACT"
	MessageSenderUser    = "USER"
	MessageSenderAIAgent = "AI_AGENT"
)

// Message content types produced by the normalizer.
const (
	MessageTypeText        = "text"
	MessageTypeImage       = "image"
	MessageTypeVideo       = "video"
	MessageTypeAudio       = "audio"
	MessageTypeDocument    = "document"
	MessageTypeSticker     = "sticker"
	MessageTypeUnsupported = "unsupported"
)

// Message represents a single message within a conversation.
type Message struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// MessageID is the external identifier for this message.
	MessageID string `json:"message_id" gorm:"column:message_id;uniqueIndex" validate:"required"`
	// ExternalMessageID is the gateway-side message key ID. It is the
	// dedup anchor: inserting an existing ID is a silent no-op.
	ExternalMessageID string `json:"external_message_id" gorm:"column:external_message_id;uniqueIndex" validate:"required"`
	// ConversationID references the owning conversation.
	ConversationID int64 `json:"conversation_id" gorm:"column:conversation_id;index" validate:"required"`
	// AccountID identifies the account/tenant this message belongs to.
	AccountID string `json:"account_id,omitempty" gorm:"column:account_id;index"`
	// Sender is one of the MessageSender* constants.
	Sender string `json:"sender" gorm:"column:sender" validate:"required,oneof=CONTACT USER AI_AGENT"`
	// FromMe mirrors the gateway flag: true for messages sent by our side.
	FromMe bool `json:"from_me,omitempty" gorm:"column:from_me"`
	// MessageType is one of the MessageType* constants.
	MessageType string `json:"message_type,omitempty" gorm:"column:message_type"`
	// Text is the extracted textual content or media caption.
	Text string `json:"text,omitempty" gorm:"column:text"`
	// MediaURL points at downloadable media content when present.
	MediaURL string `json:"media_url,omitempty" gorm:"column:media_url"`
	// IsRead tracks operator read state for inbound messages.
	IsRead bool `json:"is_read,omitempty" gorm:"column:is_read"`
	// SourceMessageID is set on AI replies to the external ID of the inbound
	// message that triggered them, guarding against duplicate responses.
	SourceMessageID string `json:"source_message_id,omitempty" gorm:"column:source_message_id;index"`
	// Timestamp is the gateway message timestamp.
	Timestamp    time.Time      `json:"timestamp,omitempty" gorm:"column:timestamp;index"`
	RawMessage   datatypes.JSON `json:"raw_message,omitempty" gorm:"type:jsonb;column:raw_message"`
	LastMetadata datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// IsInbound reports whether the message came from the remote party.
func (m *Message) IsInbound() bool {
	return m.Sender == MessageSenderContact && !m.FromMe
}
