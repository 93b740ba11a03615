package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResolvedAction is the human's verdict on a deviation event.
type ResolvedAction string

const (
	ResolveRemoveRule ResolvedAction = "REMOVE_RULE"
	ResolveKeepRule   ResolvedAction = "KEEP_RULE"
)

// DeviationEvent records a disagreement between an AI recommendation and a
// human override: the agent said decline, the user moved the deal forward
// anyway. Resolved exactly once.
type DeviationEvent struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DealID           uuid.UUID       `gorm:"type:uuid;index;not null" json:"deal_id"`
	WorkspaceID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"workspace_id"`
	AIRecommendation string          `gorm:"not null" json:"ai_recommendation"`
	UserAction       string          `gorm:"not null" json:"user_action"`
	RuleContent      *string         `json:"rule_content,omitempty"`
	Resolved         bool            `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAction   *ResolvedAction `gorm:"type:varchar(16)" json:"resolved_action,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (d *DeviationEvent) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// BusinessRuleCategory groups rules in the knowledge store.
type BusinessRuleCategory string

const (
	RuleNegativeScope BusinessRuleCategory = "NEGATIVE_SCOPE"
	RulePricing       BusinessRuleCategory = "PRICING"
	RuleGeneral       BusinessRuleCategory = "GENERAL"
)

// BusinessRule is a workspace-scoped knowledge-base rule the agent consults.
// Resolving a deviation with REMOVE_RULE cascades a delete of the matching
// negative-scope rows here.
type BusinessRule struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID            `gorm:"type:uuid;index;not null" json:"workspace_id"`
	Category    BusinessRuleCategory `gorm:"type:varchar(24);index;not null" json:"category"`
	RuleContent string               `gorm:"not null" json:"rule_content" validate:"required"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func (r *BusinessRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
