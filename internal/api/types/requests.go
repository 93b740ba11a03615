package types

import "time"

type RegisterRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8"`
	Name          string `json:"name" validate:"required"`
	WorkspaceName string `json:"workspace_name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type DealCreateRequest struct {
	ContactID   string         `json:"contact_id" validate:"required,uuid4"`
	AssigneeID  string         `json:"assignee_id" validate:"omitempty,uuid4"`
	Title       string         `json:"title" validate:"required"`
	Value       float64        `json:"value" validate:"gte=0"`
	StageKey    string         `json:"stage_key"`
	Address     string         `json:"address"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	Metadata    map[string]any `json:"metadata"`
	IsDraft     bool           `json:"is_draft"`
}

type DealTransitionRequest struct {
	StageKey string `json:"stage_key" validate:"required"`
}

type DealMetadataRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

type CompletionRejectRequest struct {
	Reason string `json:"reason"`
}

type ReconcileRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=COMPLETED RESCHEDULED NO_SHOW CANCELLED"`
	Notes   string `json:"notes"`
}

type AutomationCreateRequest struct {
	Name    string            `json:"name" validate:"required"`
	Trigger TriggerConfigBody `json:"trigger" validate:"required"`
	Action  ActionConfigBody  `json:"action" validate:"required"`
	Enabled *bool             `json:"enabled"`
}

type TriggerConfigBody struct {
	Event         string `json:"event" validate:"required,oneof=deal_stale deal_stage_change new_lead task_overdue"`
	ThresholdDays *int   `json:"threshold_days" validate:"omitempty,gte=1"`
	Stage         string `json:"stage"`
}

type ActionConfigBody struct {
	Type        string `json:"type" validate:"required,oneof=notify email create_task move_stage"`
	Channel     string `json:"channel"`
	Template    string `json:"template"`
	Message     string `json:"message"`
	TargetStage string `json:"targetStage"`
}

type AutomationToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type TaskCreateRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
	DealID      string     `json:"deal_id" validate:"omitempty,uuid4"`
	ContactID   string     `json:"contact_id" validate:"omitempty,uuid4"`
}

type ActivityLogRequest struct {
	Type      string `json:"type" validate:"required,oneof=CALL EMAIL NOTE MEETING TASK"`
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content"`
	DealID    string `json:"deal_id" validate:"omitempty,uuid4"`
	ContactID string `json:"contact_id" validate:"omitempty,uuid4"`
}

type DeviationResolveRequest struct {
	Action string `json:"action" validate:"required,oneof=REMOVE_RULE KEEP_RULE"`
}

type ContactCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}
