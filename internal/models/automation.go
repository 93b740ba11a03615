package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	appErr "github.com/fieldline/engine/pkg/errors"
)

// TriggerEvent discriminates automation trigger configs.
type TriggerEvent string

const (
	TriggerDealStale       TriggerEvent = "deal_stale"
	TriggerDealStageChange TriggerEvent = "deal_stage_change"
	TriggerNewLead         TriggerEvent = "new_lead"
	TriggerTaskOverdue     TriggerEvent = "task_overdue"
)

// ActionType discriminates automation action configs.
type ActionType string

const (
	ActionNotify     ActionType = "notify"
	ActionEmail      ActionType = "email"
	ActionCreateTask ActionType = "create_task"
	ActionMoveStage  ActionType = "move_stage"
)

// TriggerConfig is the typed form of an automation trigger. Only the fields
// relevant to the discriminant are meaningful.
type TriggerConfig struct {
	Event         TriggerEvent `json:"event" validate:"required,oneof=deal_stale deal_stage_change new_lead task_overdue"`
	ThresholdDays *int         `json:"threshold_days,omitempty"`
	Stage         DealStage    `json:"stage,omitempty"`
}

// ActionConfig is the typed form of an automation action.
type ActionConfig struct {
	Type        ActionType `json:"type" validate:"required,oneof=notify email create_task move_stage"`
	Channel     string     `json:"channel,omitempty"`
	Template    string     `json:"template,omitempty"`
	Message     string     `json:"message,omitempty"`
	TargetStage DealStage  `json:"targetStage,omitempty"`
}

// Automation is a persisted trigger/action rule, evaluated against workspace
// events. Trigger and action are stored as JSON blobs; use ParseTrigger and
// ParseAction for the typed views.
type Automation struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;index;not null" json:"workspace_id" validate:"required"`
	Name        string         `gorm:"not null" json:"name" validate:"required"`
	Enabled     bool           `gorm:"not null;default:true;index" json:"enabled"`
	Trigger     datatypes.JSON `gorm:"type:jsonb;not null" json:"trigger"`
	Action      datatypes.JSON `gorm:"type:jsonb;not null" json:"action"`
	LastFiredAt *time.Time     `json:"last_fired_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (a *Automation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ParseTrigger decodes the stored trigger config.
func (a *Automation) ParseTrigger() (TriggerConfig, error) {
	var t TriggerConfig
	if err := json.Unmarshal(a.Trigger, &t); err != nil {
		return t, appErr.Wrap(err, appErr.CodeInternal, "decode automation trigger failed")
	}
	return t, nil
}

// ParseAction decodes the stored action config.
func (a *Automation) ParseAction() (ActionConfig, error) {
	var ac ActionConfig
	if err := json.Unmarshal(a.Action, &ac); err != nil {
		return ac, appErr.Wrap(err, appErr.CodeInternal, "decode automation action failed")
	}
	return ac, nil
}

// SetTrigger encodes the typed trigger config into the storage blob.
func (a *Automation) SetTrigger(t TriggerConfig) error {
	b, err := json.Marshal(t)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "encode automation trigger failed")
	}
	a.Trigger = datatypes.JSON(b)
	return nil
}

// SetAction encodes the typed action config into the storage blob.
func (a *Automation) SetAction(ac ActionConfig) error {
	b, err := json.Marshal(ac)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "encode automation action failed")
	}
	a.Action = datatypes.JSON(b)
	return nil
}
