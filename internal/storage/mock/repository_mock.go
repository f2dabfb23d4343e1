package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

// --- EventRepo Mock ---

// EventRepoMock mocks the EventRepo interface
type EventRepoMock struct {
	mock.Mock
}

func (m *EventRepoMock) InsertRawEvent(ctx context.Context, event *model.RawEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *EventRepoMock) FindRawEventByID(ctx context.Context, id string) (*model.RawEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RawEvent), args.Error(1)
}

func (m *EventRepoMock) FindRawEventByKey(ctx context.Context, eventKey string) (*model.RawEvent, error) {
	args := m.Called(ctx, eventKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RawEvent), args.Error(1)
}

func (m *EventRepoMock) MarkEventProcessed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *EventRepoMock) MarkEventIgnored(ctx context.Context, id string, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *EventRepoMock) RecordEventError(ctx context.Context, id string, processingErr string) error {
	args := m.Called(ctx, id, processingErr)
	return args.Error(0)
}

// --- InboxRepo Mock ---

// InboxRepoMock mocks the InboxRepo interface
type InboxRepoMock struct {
	mock.Mock
}

func (m *InboxRepoMock) SaveInbox(ctx context.Context, inbox *model.Inbox) error {
	args := m.Called(ctx, inbox)
	return args.Error(0)
}

func (m *InboxRepoMock) FindInboxByInstance(ctx context.Context, instance string) (*model.Inbox, error) {
	args := m.Called(ctx, instance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Inbox), args.Error(1)
}

func (m *InboxRepoMock) UpdateInboxStatus(ctx context.Context, inboxID string, status string) (bool, error) {
	args := m.Called(ctx, inboxID, status)
	return args.Bool(0), args.Error(1)
}

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

func (m *ContactRepoMock) UpsertContact(ctx context.Context, contact *model.Contact) (*model.Contact, error) {
	args := m.Called(ctx, contact)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindContactByPhone(ctx context.Context, phoneNumber string) (*model.Contact, error) {
	args := m.Called(ctx, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) UpdateContactAvatar(ctx context.Context, contactID int64, avatarURL string) error {
	args := m.Called(ctx, contactID, avatarURL)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

func (m *ConversationRepoMock) UpsertConversation(ctx context.Context, convo *model.Conversation) (*model.Conversation, error) {
	args := m.Called(ctx, convo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) FindConversationByThread(ctx context.Context, inboxID int64, externalThreadID string) (*model.Conversation, error) {
	args := m.Called(ctx, inboxID, externalThreadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) IncrementUnread(ctx context.Context, conversationID int64) (int32, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int32), args.Error(1)
}

func (m *ConversationRepoMock) SetUnread(ctx context.Context, conversationID int64, count int32) error {
	args := m.Called(ctx, conversationID, count)
	return args.Error(0)
}

func (m *ConversationRepoMock) AssignAgent(ctx context.Context, conversationID int64, agentID int64) (bool, error) {
	args := m.Called(ctx, conversationID, agentID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepoMock) TouchLastMessage(ctx context.Context, conversationID int64, at time.Time, lastMessage datatypes.JSON) error {
	args := m.Called(ctx, conversationID, at, lastMessage)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

func (m *MessageRepoMock) InsertMessage(ctx context.Context, message *model.Message) (bool, error) {
	args := m.Called(ctx, message)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepoMock) HasReplyForSource(ctx context.Context, sourceMessageID string) (bool, error) {
	args := m.Called(ctx, sourceMessageID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepoMock) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MessageRepoMock) MarkConversationRead(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MessageRepoMock) DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// --- AgentRepo Mock ---

// AgentRepoMock mocks the AgentRepo interface
type AgentRepoMock struct {
	mock.Mock
}

func (m *AgentRepoMock) SaveAgent(ctx context.Context, agent *model.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *AgentRepoMock) FindAgentByID(ctx context.Context, id int64) (*model.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Agent), args.Error(1)
}

func (m *AgentRepoMock) ListEnabledAgents(ctx context.Context) ([]model.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Agent), args.Error(1)
}

// --- LabelRepo Mock ---

// LabelRepoMock mocks the LabelRepo interface
type LabelRepoMock struct {
	mock.Mock
}

func (m *LabelRepoMock) SaveLabel(ctx context.Context, label *model.Label) error {
	args := m.Called(ctx, label)
	return args.Error(0)
}

func (m *LabelRepoMock) FindLabelByName(ctx context.Context, name string) (*model.Label, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Label), args.Error(1)
}

func (m *LabelRepoMock) ListLabels(ctx context.Context) ([]model.Label, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Label), args.Error(1)
}

func (m *LabelRepoMock) ApplyLabel(ctx context.Context, conversationID, contactID int64, label *model.Label) (bool, error) {
	args := m.Called(ctx, conversationID, contactID, label)
	return args.Bool(0), args.Error(1)
}

func (m *LabelRepoMock) ListConversationLabelNames(ctx context.Context, conversationID int64) ([]string, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- LIDMappingRepo Mock ---

// LIDMappingRepoMock mocks the LIDMappingRepo interface
type LIDMappingRepoMock struct {
	mock.Mock
}

func (m *LIDMappingRepoMock) ListLIDMappings(ctx context.Context, accountID string) ([]model.LIDMapping, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LIDMapping), args.Error(1)
}

func (m *LIDMappingRepoMock) SaveLIDMapping(ctx context.Context, mapping *model.LIDMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

// --- Repository Mock (Combined) ---

// RepositoryMock mocks the full storage surface used by the usecase layer.
type RepositoryMock struct {
	EventRepoMock
	InboxRepoMock
	ContactRepoMock
	ConversationRepoMock
	MessageRepoMock
	AgentRepoMock
	LabelRepoMock
	LIDMappingRepoMock
}
