package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Event types recognized by the processor. Incoming webhook payloads carry
// these under an "event" or "type" field depending on the gateway version.
const (
	EventMessageReceived = "messages.upsert"
	EventMessageStatus   = "messages.update"
	EventChatMetadata    = "chats.update"
	EventConnectionState = "connection.update"
)

// eventTypeAliases maps historical gateway spellings to the canonical types.
var eventTypeAliases = map[string]string{
	"messages.upsert":   EventMessageReceived,
	"messages_upsert":   EventMessageReceived,
	"message":           EventMessageReceived,
	"messages.update":   EventMessageStatus,
	"messages_update":   EventMessageStatus,
	"message.ack":       EventMessageStatus,
	"chats.update":      EventChatMetadata,
	"chats_update":      EventChatMetadata,
	"chats.upsert":      EventChatMetadata,
	"connection.update": EventConnectionState,
	"connection_update": EventConnectionState,
	"connection.state":  EventConnectionState,
}

// NormalizeEventType maps a raw event type string to its canonical form.
// Returns the raw input lowercased when no alias is known, so unrecognized
// events still reach the default handler with a stable identifier.
func NormalizeEventType(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := eventTypeAliases[key]; ok {
		return canonical, true
	}
	return key, false
}

// RawEvent is one inbound webhook payload persisted verbatim before
// interpretation. Rows are never deleted; the processor only flips the
// processed flag and records errors.
type RawEvent struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey;type:text"`
	Instance    string         `json:"instance" gorm:"column:instance;index"`
	EventType   string         `json:"event_type" gorm:"column:event_type;index"`
	EventKey    string         `json:"event_key" gorm:"column:event_key;uniqueIndex" validate:"required"`
	Payload     datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	Processed   bool           `json:"processed" gorm:"column:processed;default:false;index"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty" gorm:"column:processed_at"`
	Error       string         `json:"error,omitempty" gorm:"column:error"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (RawEvent) TableName() string {
	return "raw_events"
}
