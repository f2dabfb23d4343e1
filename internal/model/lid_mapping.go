package model

import (
	"time"
)

// LIDMapping maps a WhatsApp LID (anonymized linked-device identifier) to
// the contact's real phone number. Events addressed with an @lid JID are
// resolved through this table before any contact lookup.
type LIDMapping struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// LID is the anonymized identifier without the @lid suffix.
	LID string `json:"lid" gorm:"column:lid;uniqueIndex" validate:"required"`
	// PhoneNumber is the resolved real phone number.
	PhoneNumber string `json:"phone_number" gorm:"column:phone_number;index" validate:"required"`
	// AccountID identifies the account/tenant this mapping belongs to.
	AccountID string    `json:"account_id,omitempty" gorm:"column:account_id;index"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (LIDMapping) TableName() string {
	return "lid_mappings"
}
