package model

import (
	"time"
)

// Label categories. STAGE labels are mutually exclusive per conversation
// (attaching one detaches the others); TAG labels accumulate freely.
const (
	LabelCategoryStage = "STAGE"
	LabelCategoryTag   = "TAG"
)

// Label is an account-scoped classification applied to conversations or
// contacts.
type Label struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// LabelID is the external identifier for this label.
	LabelID string `json:"label_id" gorm:"column:label_id;uniqueIndex" validate:"required"`
	// Name is unique within the account; stage switching matches on it
	// case-insensitively.
	Name string `json:"name" gorm:"column:name;uniqueIndex:idx_labels_account_name" validate:"required"`
	// AccountID identifies the account/tenant this label belongs to.
	AccountID string `json:"account_id,omitempty" gorm:"column:account_id;uniqueIndex:idx_labels_account_name"`
	// Category is one of the LabelCategory* constants.
	Category string `json:"category" gorm:"column:category;default:TAG" validate:"required,oneof=STAGE TAG"`
	// Description is surfaced to the responder LLM as label vocabulary.
	Description string `json:"description,omitempty" gorm:"column:description"`
	// Color is a display hint for UIs.
	Color     string    `json:"color,omitempty" gorm:"column:color"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Label) TableName() string {
	return "labels"
}

// ConversationLabel attaches a label to a conversation.
type ConversationLabel struct {
	ID             int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	ConversationID int64     `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:idx_conversation_labels_pair" validate:"required"`
	LabelID        int64     `json:"label_id" gorm:"column:label_id;uniqueIndex:idx_conversation_labels_pair;index" validate:"required"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ConversationLabel) TableName() string {
	return "conversation_labels"
}

// ContactLabel attaches a label to a contact.
type ContactLabel struct {
	ID        int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	ContactID int64     `json:"contact_id" gorm:"column:contact_id;uniqueIndex:idx_contact_labels_pair" validate:"required"`
	LabelID   int64     `json:"label_id" gorm:"column:label_id;uniqueIndex:idx_contact_labels_pair;index" validate:"required"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ContactLabel) TableName() string {
	return "contact_labels"
}
