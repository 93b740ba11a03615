package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityType classifies an audit-log entry.
type ActivityType string

const (
	ActivityCall    ActivityType = "CALL"
	ActivityEmail   ActivityType = "EMAIL"
	ActivityNote    ActivityType = "NOTE"
	ActivityMeeting ActivityType = "MEETING"
	ActivityTask    ActivityType = "TASK"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivityNote, ActivityMeeting, ActivityTask:
		return true
	}
	return false
}

// Activity is an immutable audit-log entry attached to a deal and/or contact.
// Rows are append-only; the only permitted removal is the undo of the most
// recent agent-authored entry. Ordering by CreatedAt is the one strict
// ordering guarantee in the system and drives both "last activity" health
// computation and undo.
type Activity struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Type        ActivityType `gorm:"type:varchar(16);not null" json:"type" validate:"required,oneof=CALL EMAIL NOTE MEETING TASK"`
	Title       string       `gorm:"not null" json:"title" validate:"required"`
	Content     string       `json:"content,omitempty"`
	Description string       `json:"description,omitempty"`

	DealID    *uuid.UUID `gorm:"type:uuid;index" json:"deal_id,omitempty"`
	ContactID *uuid.UUID `gorm:"type:uuid;index" json:"contact_id,omitempty"`

	// UserID is the authoring user. Nil means the entry was written by the
	// agent or an automation rather than a person.
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
