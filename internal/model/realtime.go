package model

// Realtime event names published to connected frontends.
const (
	RealtimeNewMessage         = "new_message"
	RealtimeReadReceipt        = "read_receipt"
	RealtimeConversationUpdate = "conversation_updated"
	RealtimeMessagesCleared    = "messages_cleared"
	RealtimeInboxStatus        = "inbox_status_updated"
	RealtimeLabelsUpdated      = "labels_updated"
)

// RealtimeEvent is the envelope published on the realtime subject tree.
type RealtimeEvent struct {
	Event     string      `json:"event" validate:"required"`
	AccountID string      `json:"account_id" validate:"required"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewMessagePayload announces a message appended to a conversation.
type NewMessagePayload struct {
	ConversationID string   `json:"conversation_id"`
	Message        *Message `json:"message"`
	UnreadCount    int32    `json:"unread_count"`
}

// ReadReceiptPayload announces a conversation's unread count dropping to zero.
type ReadReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationUpdatePayload announces metadata changes on a conversation.
type ConversationUpdatePayload struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int32  `json:"unread_count"`
}

// MessagesClearedPayload announces a conversation history reset.
type MessagesClearedPayload struct {
	ConversationID string `json:"conversation_id"`
}

// InboxStatusPayload announces a gateway connection state transition.
type InboxStatusPayload struct {
	InboxID string `json:"inbox_id"`
	Status  string `json:"status"`
}

// LabelsUpdatedPayload announces label attachment changes on a conversation.
type LabelsUpdatedPayload struct {
	ConversationID string   `json:"conversation_id"`
	Labels         []string `json:"labels"`
}
