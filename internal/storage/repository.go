package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

// EventRepo defines raw event log storage operations.
type EventRepo interface {
	// InsertRawEvent stores an event, reporting whether a new row was
	// actually created. A false return means the event key already exists.
	InsertRawEvent(ctx context.Context, event *model.RawEvent) (bool, error)
	FindRawEventByID(ctx context.Context, id string) (*model.RawEvent, error)
	// FindRawEventByKey fetches a raw event by its dedup key, used on
	// duplicate deliveries to recover the stored row.
	FindRawEventByKey(ctx context.Context, eventKey string) (*model.RawEvent, error)
	MarkEventProcessed(ctx context.Context, id string) error
	// MarkEventIgnored closes an event out as processed while keeping an
	// explanatory marker on its error column.
	MarkEventIgnored(ctx context.Context, id string, reason string) error
	RecordEventError(ctx context.Context, id string, processingErr string) error
}

// InboxRepo defines inbox storage operations.
type InboxRepo interface {
	SaveInbox(ctx context.Context, inbox *model.Inbox) error
	FindInboxByInstance(ctx context.Context, instance string) (*model.Inbox, error)
	// UpdateInboxStatus sets the connection status, reporting whether the
	// stored value actually changed.
	UpdateInboxStatus(ctx context.Context, inboxID string, status string) (bool, error)
}

// ContactRepo defines contact storage operations.
type ContactRepo interface {
	// UpsertContact creates or refreshes a contact keyed by account and
	// phone number, returning the stored row.
	UpsertContact(ctx context.Context, contact *model.Contact) (*model.Contact, error)
	FindContactByPhone(ctx context.Context, phoneNumber string) (*model.Contact, error)
	UpdateContactAvatar(ctx context.Context, contactID int64, avatarURL string) error
}

// ConversationRepo defines conversation storage operations.
type ConversationRepo interface {
	// UpsertConversation creates or refreshes a conversation keyed by
	// thread and inbox, returning the stored row.
	UpsertConversation(ctx context.Context, convo *model.Conversation) (*model.Conversation, error)
	FindConversationByThread(ctx context.Context, inboxID int64, externalThreadID string) (*model.Conversation, error)
	// IncrementUnread bumps the unread counter and returns the new value.
	IncrementUnread(ctx context.Context, conversationID int64) (int32, error)
	SetUnread(ctx context.Context, conversationID int64, count int32) error
	// AssignAgent sets the agent on a conversation only when none is
	// assigned yet, reporting whether the assignment happened.
	AssignAgent(ctx context.Context, conversationID int64, agentID int64) (bool, error)
	TouchLastMessage(ctx context.Context, conversationID int64, at time.Time, lastMessage datatypes.JSON) error
}

// MessageRepo defines message storage operations.
type MessageRepo interface {
	// InsertMessage stores a message, reporting whether a new row was
	// actually created. A false return means the external message ID was
	// seen before.
	InsertMessage(ctx context.Context, message *model.Message) (bool, error)
	// HasReplyForSource reports whether an AI reply already exists for the
	// given inbound external message ID.
	HasReplyForSource(ctx context.Context, sourceMessageID string) (bool, error)
	// ListRecentMessages returns up to limit messages of a conversation,
	// oldest first.
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	MarkConversationRead(ctx context.Context, conversationID int64) error
	// DeleteConversationMessages removes all messages of a conversation and
	// returns how many were deleted.
	DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error)
}

// AgentRepo defines AI agent storage operations.
type AgentRepo interface {
	SaveAgent(ctx context.Context, agent *model.Agent) error
	FindAgentByID(ctx context.Context, id int64) (*model.Agent, error)
	ListEnabledAgents(ctx context.Context) ([]model.Agent, error)
}

// LabelRepo defines label storage operations.
type LabelRepo interface {
	SaveLabel(ctx context.Context, label *model.Label) error
	// FindLabelByName matches a label by name within the account,
	// case-insensitively.
	FindLabelByName(ctx context.Context, name string) (*model.Label, error)
	ListLabels(ctx context.Context) ([]model.Label, error)
	// ApplyLabel attaches a label to a conversation and its contact.
	// Attaching a STAGE label detaches every other STAGE label from both
	// sides first. Reports whether the attachment set actually changed.
	ApplyLabel(ctx context.Context, conversationID, contactID int64, label *model.Label) (bool, error)
	ListConversationLabelNames(ctx context.Context, conversationID int64) ([]string, error)
}

// LIDMappingRepo defines LID mapping storage operations.
type LIDMappingRepo interface {
	ListLIDMappings(ctx context.Context, accountID string) ([]model.LIDMapping, error)
	SaveLIDMapping(ctx context.Context, mapping *model.LIDMapping) error
}
