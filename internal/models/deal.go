package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DealStage is a deal's position in the pipeline state machine.
type DealStage string

const (
	StageNew               DealStage = "NEW"
	StageContacted         DealStage = "CONTACTED"
	StageNegotiation       DealStage = "NEGOTIATION"
	StageScheduled         DealStage = "SCHEDULED"
	StagePipeline          DealStage = "PIPELINE"
	StageInvoiced          DealStage = "INVOICED"
	StagePendingCompletion DealStage = "PENDING_COMPLETION"
	StageWon               DealStage = "WON"
	StageLost              DealStage = "LOST"
	StageDeleted           DealStage = "DELETED"
)

// Valid reports whether s is one of the known pipeline stages.
func (s DealStage) Valid() bool {
	switch s {
	case StageNew, StageContacted, StageNegotiation, StageScheduled,
		StagePipeline, StageInvoiced, StagePendingCompletion,
		StageWon, StageLost, StageDeleted:
		return true
	}
	return false
}

// Terminal reports whether the stage ends the deal's active lifecycle.
func (s DealStage) Terminal() bool {
	return s == StageWon || s == StageLost || s == StageDeleted
}

// ActualOutcome records how a stale scheduled job actually ended.
type ActualOutcome string

const (
	OutcomeCompleted   ActualOutcome = "COMPLETED"
	OutcomeRescheduled ActualOutcome = "RESCHEDULED"
	OutcomeNoShow      ActualOutcome = "NO_SHOW"
	OutcomeCancelled   ActualOutcome = "CANCELLED"
)

// Valid reports whether o is a known reconciliation outcome.
func (o ActualOutcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeRescheduled, OutcomeNoShow, OutcomeCancelled:
		return true
	}
	return false
}

// Metadata keys used by the approval sub-workflow and the pricing-learning
// hook. Workflow state is persisted inside the generic metadata map so the
// storage shape stays compatible with existing rows; services translate to
// and from structured types at the boundary.
const (
	MetaPreviousStage         = "previousStage"
	MetaCompletionRequestedBy = "completionRequestedBy"
	MetaCompletionRequestedAt = "completionRequestedAt"
	MetaCompletionRejectedBy  = "completionRejectedBy"
	MetaCompletionRejectedAt  = "completionRejectedAt"
	MetaRejectionReason       = "completionRejectionReason"
	MetaPricingSuggestedAt    = "pricingSuggestionCreatedAt"
	MetaAIRecommendation      = "aiRecommendation"
	MetaAIRecommendReason     = "aiRecommendationReason"
	MetaNotes                 = "notes"
)

// Deal represents one job, listing, or sale opportunity in a workspace
// pipeline.
type Deal struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;index;not null" json:"workspace_id" validate:"required"`
	ContactID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"contact_id" validate:"required"`
	AssigneeID  *uuid.UUID `gorm:"type:uuid;index" json:"assignee_id,omitempty"`

	Title   string    `gorm:"not null" json:"title" validate:"required"`
	Value   float64   `gorm:"not null;default:0" json:"value" validate:"gte=0"`
	Stage   DealStage `gorm:"type:varchar(24);index;not null;default:'NEW'" json:"stage"`
	Address string    `json:"address"`

	ScheduledAt *time.Time        `gorm:"index" json:"scheduled_at,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	IsDraft bool `gorm:"not null;default:false" json:"is_draft"`
	IsStale bool `gorm:"not null;default:false;index" json:"is_stale"`

	ActualOutcome *ActualOutcome `gorm:"type:varchar(16)" json:"actual_outcome,omitempty"`
	OutcomeNotes  *string        `json:"outcome_notes,omitempty"`

	StageChangedAt *time.Time `json:"stage_changed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (d *Deal) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// MetaString returns the string value stored under key, if any.
func (d *Deal) MetaString(key string) (string, bool) {
	if d.Metadata == nil {
		return "", false
	}
	v, ok := d.Metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
