package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// RandomJSONB generates random JSON data for testing.
func RandomJSONB() datatypes.JSON {
	jsonData := map[string]interface{}{
		"key": gofakeit.Word(),
		"num": gofakeit.Number(1, 100),
	}
	bytes, _ := json.Marshal(jsonData)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewInbox creates an Inbox instance with default fake data.
func NewInbox(overrideDefaults ...*Inbox) *Inbox {
	base := &Inbox{
		InboxID:     gofakeit.UUID(),
		Instance:    "inst_" + gofakeit.LetterN(8),
		Name:        gofakeit.Company(),
		PhoneNumber: gofakeit.Phone(),
		Status:      InboxStatusConnected,
		AIEnabled:   true,
		AccountID:   "acct_" + gofakeit.LetterN(10),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.InboxID != "" {
			base.InboxID = ovr.InboxID
		}
		if ovr.Instance != "" {
			base.Instance = ovr.Instance
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		base.AIEnabled = ovr.AIEnabled
	}
	return base
}

// NewContact creates a Contact instance with default fake data.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		ContactID:   gofakeit.UUID(),
		PhoneNumber: fmt.Sprintf("628%d", gofakeit.Number(100000000, 999999999)),
		AccountID:   "acct_" + gofakeit.LetterN(10),
		PushName:    gofakeit.Username(),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if ovr.PushName != "" {
			base.PushName = ovr.PushName
		}
		if ovr.CustomName != "" {
			base.CustomName = ovr.CustomName
		}
		if ovr.AvatarURL != "" {
			base.AvatarURL = ovr.AvatarURL
		}
		base.IsGroup = ovr.IsGroup
	}
	return base
}

// NewConversation creates a Conversation instance with default fake data.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	phone := fmt.Sprintf("628%d", gofakeit.Number(100000000, 999999999))
	base := &Conversation{
		ConversationID:   gofakeit.UUID(),
		ExternalThreadID: phone + JIDSuffixUser,
		InboxID:          int64(gofakeit.Number(1, 1000)),
		ContactID:        int64(gofakeit.Number(1, 1000)),
		AccountID:        "acct_" + gofakeit.LetterN(10),
		Status:           ConversationStatusOpen,
		AIEnabled:        true,
		CreatedAt:        utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:        utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.ExternalThreadID != "" {
			base.ExternalThreadID = ovr.ExternalThreadID
		}
		if ovr.InboxID != 0 {
			base.InboxID = ovr.InboxID
		}
		if ovr.ContactID != 0 {
			base.ContactID = ovr.ContactID
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if ovr.AgentID != 0 {
			base.AgentID = ovr.AgentID
		}
		if ovr.UnreadCount != 0 {
			base.UnreadCount = ovr.UnreadCount
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		base.IsGroup = ovr.IsGroup
		base.AIEnabled = ovr.AIEnabled
	}
	return base
}

// NewMessage creates a Message instance with default fake data.
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		MessageID:         gofakeit.UUID(),
		ExternalMessageID: gofakeit.LetterN(20),
		ConversationID:    int64(gofakeit.Number(1, 1000)),
		AccountID:         "acct_" + gofakeit.LetterN(10),
		Sender:            MessageSenderContact,
		MessageType:       MessageTypeText,
		Text:              gofakeit.Sentence(6),
		Timestamp:         utils.Now().Add(-time.Duration(gofakeit.Number(1, 60)) * time.Minute),
		CreatedAt:         utils.Now(),
		UpdatedAt:         utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.ExternalMessageID != "" {
			base.ExternalMessageID = ovr.ExternalMessageID
		}
		if ovr.ConversationID != 0 {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if ovr.Sender != "" {
			base.Sender = ovr.Sender
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.Text != "" {
			base.Text = ovr.Text
		}
		if ovr.SourceMessageID != "" {
			base.SourceMessageID = ovr.SourceMessageID
		}
		if !ovr.Timestamp.IsZero() {
			base.Timestamp = ovr.Timestamp
		}
		base.FromMe = ovr.FromMe
		base.IsRead = ovr.IsRead
	}
	return base
}

// NewAgentRecord creates an Agent instance with default fake data.
func NewAgentRecord(overrideDefaults ...*Agent) *Agent {
	base := &Agent{
		AgentID:            gofakeit.UUID(),
		Name:               gofakeit.JobTitle(),
		Description:        gofakeit.Sentence(8),
		SystemPrompt:       gofakeit.Sentence(12),
		CommunicationStyle: gofakeit.Sentence(5),
		Enabled:            true,
		AccountID:          "acct_" + gofakeit.LetterN(10),
		CreatedAt:          utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:          utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.AgentID != "" {
			base.AgentID = ovr.AgentID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Description != "" {
			base.Description = ovr.Description
		}
		if ovr.SystemPrompt != "" {
			base.SystemPrompt = ovr.SystemPrompt
		}
		if ovr.CommunicationStyle != "" {
			base.CommunicationStyle = ovr.CommunicationStyle
		}
		if ovr.HandoffRules != "" {
			base.HandoffRules = ovr.HandoffRules
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if len(ovr.KnowledgeData) > 0 {
			base.KnowledgeData = ovr.KnowledgeData
		}
		if len(ovr.Attributes) > 0 {
			base.Attributes = ovr.Attributes
		}
		base.Enabled = ovr.Enabled
	}
	return base
}

// NewLabel creates a Label instance with default fake data.
func NewLabel(overrideDefaults ...*Label) *Label {
	base := &Label{
		LabelID:   gofakeit.UUID(),
		Name:      gofakeit.Word(),
		AccountID: "acct_" + gofakeit.LetterN(10),
		Category:  LabelCategoryTag,
		Color:     gofakeit.HexColor(),
		CreatedAt: utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.LabelID != "" {
			base.LabelID = ovr.LabelID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if ovr.Category != "" {
			base.Category = ovr.Category
		}
		if ovr.Description != "" {
			base.Description = ovr.Description
		}
	}
	return base
}

// NewRawEvent creates a RawEvent instance with default fake data.
func NewRawEvent(overrideDefaults ...*RawEvent) *RawEvent {
	instance := "inst_" + gofakeit.LetterN(8)
	messageID := gofakeit.LetterN(20)
	base := &RawEvent{
		ID:        gofakeit.UUID(),
		Instance:  instance,
		EventType: EventMessageReceived,
		EventKey:  fmt.Sprintf("%s:%s:%s", instance, EventMessageReceived, messageID),
		Payload:   RandomJSONB(),
		CreatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Instance != "" {
			base.Instance = ovr.Instance
		}
		if ovr.EventType != "" {
			base.EventType = ovr.EventType
		}
		if ovr.EventKey != "" {
			base.EventKey = ovr.EventKey
		}
		if len(ovr.Payload) > 0 {
			base.Payload = ovr.Payload
		}
		base.Processed = ovr.Processed
		if ovr.ProcessedAt != nil {
			base.ProcessedAt = ovr.ProcessedAt
		}
		if ovr.Error != "" {
			base.Error = ovr.Error
		}
	}
	return base
}
