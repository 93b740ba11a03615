package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/pipeline"
	"github.com/fieldline/engine/internal/repository"
	appErr "github.com/fieldline/engine/pkg/errors"
	"github.com/fieldline/engine/pkg/logger"
)

// EventType classifies what happened in the workspace.
type EventType string

const (
	EventStageChange EventType = "stage_change"
	EventNewLead     EventType = "new_lead"
	EventDealStale   EventType = "deal_stale"
	EventTaskOverdue EventType = "task_overdue"
)

// Event is one occurrence the automation engine evaluates rules against.
type Event struct {
	Type   EventType
	DealID *uuid.UUID
	Stage  models.DealStage

	// StaleDays is how long the deal has been inactive, for deal_stale.
	StaleDays int

	// OverdueTasks is the overdue count carried by task_overdue events.
	OverdueTasks int
}

// EvalResult summarizes one evaluation pass. Errors holds per-rule failures;
// a failing rule never stops the remaining rules from running.
type EvalResult struct {
	Matched int      `json:"matched"`
	Fired   int      `json:"fired"`
	Results []string `json:"results"`
	Errors  []string `json:"errors,omitempty"`
}

// StageMover is the slice of the deal service the engine's move_stage action
// needs. Bound after construction to break the mutual dependency between the
// deal service and the engine.
type StageMover interface {
	TransitionStage(ctx context.Context, dealID uuid.UUID, stageKey string, actor Actor) error
}

type AutomationService interface {
	AutomationEvaluator

	// BindStageMover wires the move_stage action to the deal service after
	// both services exist.
	BindStageMover(m StageMover)

	CreateAutomation(ctx context.Context, input *CreateAutomationInput) (*models.Automation, error)
	ListAutomations(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error)
	SetEnabled(ctx context.Context, id, workspaceID uuid.UUID, enabled bool) error
	DeleteAutomation(ctx context.Context, id, workspaceID uuid.UUID) error

	// SeedPresets installs the starter rules for a new workspace. Skipped
	// when the workspace already has rules.
	SeedPresets(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error)

	// CheckStaleDeals evaluates deal_stale rules against every active deal
	// in the workspace. Run on a schedule, not on user actions.
	CheckStaleDeals(ctx context.Context, workspaceID uuid.UUID) (*EvalResult, error)

	// CheckOverdueTasks fires task_overdue rules when the workspace has any
	// overdue task. The trigger is deliberately coarse: one firing per run,
	// not one per task.
	CheckOverdueTasks(ctx context.Context, workspaceID uuid.UUID) (*EvalResult, error)
}

type CreateAutomationInput struct {
	WorkspaceID uuid.UUID
	Name        string
	Trigger     models.TriggerConfig
	Action      models.ActionConfig
	Enabled     *bool
}

type automationService struct {
	automationRepo repository.AutomationRepository
	dealRepo       repository.DealRepository
	activityRepo   repository.ActivityRepository
	taskRepo       repository.TaskRepository
	userRepo       repository.UserRepository
	workspaceRepo  repository.WorkspaceRepository
	notifier       Notifier
	mover          StageMover
	validate       *validator.Validate
	now            func() time.Time
}

func NewAutomationService(
	automations repository.AutomationRepository,
	deals repository.DealRepository,
	activities repository.ActivityRepository,
	tasks repository.TaskRepository,
	users repository.UserRepository,
	workspaces repository.WorkspaceRepository,
	notifier Notifier,
) AutomationService {
	return &automationService{
		automationRepo: automations,
		dealRepo:       deals,
		activityRepo:   activities,
		taskRepo:       tasks,
		userRepo:       users,
		workspaceRepo:  workspaces,
		notifier:       notifier,
		validate:       validator.New(),
		now:            time.Now,
	}
}

var _ AutomationService = (*automationService)(nil)

// BindStageMover wires the move_stage action to the deal service. Must be
// called during startup before any evaluation runs.
func (s *automationService) BindStageMover(m StageMover) { s.mover = m }

func (s *automationService) CreateAutomation(ctx context.Context, input *CreateAutomationInput) (*models.Automation, error) {
	if input.Name == "" {
		return nil, appErr.New(appErr.CodeInvalid, "name is required")
	}
	if err := s.validate.Struct(input.Trigger); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid trigger config")
	}
	if err := s.validate.Struct(input.Action); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid action config")
	}
	if input.Trigger.Stage != "" && !input.Trigger.Stage.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "invalid trigger stage: "+string(input.Trigger.Stage))
	}
	if input.Action.Type == models.ActionMoveStage {
		if !input.Action.TargetStage.Valid() {
			return nil, appErr.New(appErr.CodeInvalid, "move_stage needs a valid target stage")
		}
	}

	a := &models.Automation{
		WorkspaceID: input.WorkspaceID,
		Name:        input.Name,
		Enabled:     true,
	}
	if input.Enabled != nil {
		a.Enabled = *input.Enabled
	}
	if err := a.SetTrigger(input.Trigger); err != nil {
		return nil, err
	}
	if err := a.SetAction(input.Action); err != nil {
		return nil, err
	}
	if err := s.automationRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *automationService) ListAutomations(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error) {
	return s.automationRepo.ListByWorkspace(ctx, workspaceID)
}

func (s *automationService) SetEnabled(ctx context.Context, id, workspaceID uuid.UUID, enabled bool) error {
	var a models.Automation
	if err := s.automationRepo.GetInWorkspace(ctx, id, workspaceID, &a); err != nil {
		return err
	}
	return s.automationRepo.SetEnabled(ctx, id, enabled)
}

func (s *automationService) DeleteAutomation(ctx context.Context, id, workspaceID uuid.UUID) error {
	var a models.Automation
	if err := s.automationRepo.GetInWorkspace(ctx, id, workspaceID, &a); err != nil {
		return err
	}
	return s.automationRepo.Delete(ctx, id)
}

func (s *automationService) SeedPresets(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error) {
	existing, err := s.automationRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	seven := 7
	presets := []struct {
		name    string
		trigger models.TriggerConfig
		action  models.ActionConfig
	}{
		{
			name:    "Stale deal reminder",
			trigger: models.TriggerConfig{Event: models.TriggerDealStale, ThresholdDays: &seven},
			action:  models.ActionConfig{Type: models.ActionNotify, Message: "This deal has gone quiet. Time to follow up."},
		},
		{
			name:    "New lead follow-up",
			trigger: models.TriggerConfig{Event: models.TriggerNewLead},
			action:  models.ActionConfig{Type: models.ActionCreateTask, Message: "Reach out to the new lead"},
		},
		{
			name:    "Quote sent nudge",
			trigger: models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: models.StageContacted},
			action:  models.ActionConfig{Type: models.ActionCreateTask, Message: "Follow up on the quote"},
		},
	}

	out := make([]models.Automation, 0, len(presets))
	for _, p := range presets {
		a := &models.Automation{WorkspaceID: workspaceID, Name: p.name, Enabled: true}
		if err := a.SetTrigger(p.trigger); err != nil {
			return nil, err
		}
		if err := a.SetAction(p.action); err != nil {
			return nil, err
		}
		if err := s.automationRepo.Create(ctx, a); err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

type evalDepthKey struct{}

// maxEvalDepth bounds move_stage cascades: a rule that moves a deal into a
// stage matched by another rule re-enters the engine, and nothing in rule
// configs prevents a cycle.
const maxEvalDepth = 3

func evalDepth(ctx context.Context) int {
	n, _ := ctx.Value(evalDepthKey{}).(int)
	return n
}

func (s *automationService) Evaluate(ctx context.Context, workspaceID uuid.UUID, event Event) (*EvalResult, error) {
	depth := evalDepth(ctx)
	if depth >= maxEvalDepth {
		logger.L().Warn("automation cascade depth exceeded",
			zap.String("workspace_id", workspaceID.String()),
			zap.String("event", string(event.Type)),
		)
		return &EvalResult{}, nil
	}
	ctx = context.WithValue(ctx, evalDepthKey{}, depth+1)

	rules, err := s.automationRepo.ListEnabledByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	res := &EvalResult{}
	for _, rule := range rules {
		rule := rule
		trigger, err := rule.ParseTrigger()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("[%s] bad trigger config: %v", rule.Name, err))
			continue
		}
		if !triggerMatches(trigger, event) {
			continue
		}
		res.Matched++

		line, err := s.execute(ctx, &rule, event)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("[%s] %v", rule.Name, err))
			logger.L().Warn("automation rule failed",
				zap.String("rule", rule.Name),
				zap.String("workspace_id", workspaceID.String()),
				zap.Error(err),
			)
			continue
		}
		res.Fired++
		res.Results = append(res.Results, fmt.Sprintf("[%s] %s", rule.Name, line))
		if err := s.automationRepo.TouchLastFired(ctx, rule.ID, s.now()); err != nil {
			logger.L().Warn("touch last_fired_at failed", zap.String("rule", rule.Name), zap.Error(err))
		}
	}
	return res, nil
}

func triggerMatches(t models.TriggerConfig, e Event) bool {
	switch t.Event {
	case models.TriggerDealStageChange:
		// Stage-change rules always name a stage; an unset one never fires.
		return e.Type == EventStageChange && t.Stage == e.Stage
	case models.TriggerNewLead:
		return e.Type == EventNewLead
	case models.TriggerDealStale:
		if e.Type != EventDealStale {
			return false
		}
		threshold := 7
		if t.ThresholdDays != nil {
			threshold = *t.ThresholdDays
		}
		if e.StaleDays < threshold {
			return false
		}
		// A stale rule pinned to a stage only covers deals sitting there.
		return t.Stage == "" || t.Stage == e.Stage
	case models.TriggerTaskOverdue:
		return e.Type == EventTaskOverdue
	}
	return false
}

func (s *automationService) execute(ctx context.Context, rule *models.Automation, event Event) (string, error) {
	action, err := rule.ParseAction()
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInvalid, "bad action config")
	}

	switch action.Type {
	case models.ActionNotify:
		return s.executeNotify(ctx, rule, action, event)
	case models.ActionEmail:
		// Email delivery is out of band; record the intent.
		logger.L().Info("automation email queued",
			zap.String("rule", rule.Name),
			zap.String("template", action.Template),
			zap.String("channel", action.Channel),
		)
		return "queued email " + action.Template, nil
	case models.ActionCreateTask:
		return s.executeCreateTask(ctx, action, event)
	case models.ActionMoveStage:
		return s.executeMoveStage(ctx, action, event)
	default:
		return "", appErr.New(appErr.CodeInvalid, "unknown action type: "+string(action.Type))
	}
}

func (s *automationService) executeNotify(ctx context.Context, rule *models.Automation, action models.ActionConfig, event Event) (string, error) {
	if s.notifier == nil {
		return "", appErr.New(appErr.CodeUnavailable, "no notifier configured")
	}
	var owner models.User
	if err := s.userRepo.GetWorkspaceOwner(ctx, rule.WorkspaceID, &owner); err != nil {
		return "", err
	}

	message := action.Message
	if message == "" {
		message = "Automation fired."
	}
	link := ""
	if event.DealID != nil {
		link = "/deals/" + event.DealID.String()
	}
	if err := s.notifier.Notify(ctx, owner.ID, rule.Name, message, models.NotifyInfo, link); err != nil {
		return "", err
	}
	return "notified owner: " + message, nil
}

func (s *automationService) executeCreateTask(ctx context.Context, action models.ActionConfig, event Event) (string, error) {
	// A task needs a deal to hang off; coarse events carry none.
	if event.DealID == nil {
		return "skipped create_task: no deal in event", nil
	}
	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, *event.DealID, &d); err != nil {
		return "", err
	}

	title := action.Message
	if title == "" {
		title = "Follow up"
	}
	due := s.now().Add(48 * time.Hour)
	t := &models.Task{
		Title:     title,
		DueAt:     &due,
		DealID:    &d.ID,
		ContactID: &d.ContactID,
	}
	if err := s.taskRepo.Create(ctx, t); err != nil {
		return "", err
	}
	return fmt.Sprintf("created task %q due %s", title, due.Format("2006-01-02")), nil
}

func (s *automationService) executeMoveStage(ctx context.Context, action models.ActionConfig, event Event) (string, error) {
	if event.DealID == nil {
		return "skipped move_stage: no deal in event", nil
	}
	if s.mover == nil {
		return "", appErr.New(appErr.CodeUnavailable, "no stage mover bound")
	}
	key, ok := pipeline.KeyForStage(action.TargetStage)
	if !ok {
		return "", appErr.New(appErr.CodeInvalid, "invalid target stage: "+string(action.TargetStage))
	}
	if err := s.mover.TransitionStage(ctx, *event.DealID, key, SystemActor()); err != nil {
		return "", err
	}
	return "moved deal to " + pipeline.Label(action.TargetStage), nil
}

func (s *automationService) CheckStaleDeals(ctx context.Context, workspaceID uuid.UUID) (*EvalResult, error) {
	deals, err := s.dealRepo.ListStaleCandidates(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(deals) == 0 {
		return &EvalResult{}, nil
	}

	ids := make([]uuid.UUID, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
	}
	latest, err := s.activityRepo.LatestPerDeal(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	total := &EvalResult{}
	for _, d := range deals {
		last := d.CreatedAt
		if a, ok := latest[d.ID]; ok {
			last = a.CreatedAt
		}
		days := int(now.Sub(last).Hours() / 24)
		if days < 0 {
			days = 0
		}
		id := d.ID
		res, err := s.Evaluate(ctx, workspaceID, Event{Type: EventDealStale, DealID: &id, Stage: d.Stage, StaleDays: days})
		if err != nil {
			total.Errors = append(total.Errors, err.Error())
			continue
		}
		total.Matched += res.Matched
		total.Fired += res.Fired
		total.Results = append(total.Results, res.Results...)
		total.Errors = append(total.Errors, res.Errors...)
	}
	return total, nil
}

func (s *automationService) CheckOverdueTasks(ctx context.Context, workspaceID uuid.UUID) (*EvalResult, error) {
	overdue, err := s.taskRepo.ListOverdueByWorkspace(ctx, workspaceID, s.now())
	if err != nil {
		return nil, err
	}
	if len(overdue) == 0 {
		return &EvalResult{}, nil
	}
	return s.Evaluate(ctx, workspaceID, Event{Type: EventTaskOverdue, OverdueTasks: len(overdue)})
}
