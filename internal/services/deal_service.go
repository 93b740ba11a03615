package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/pipeline"
	"github.com/fieldline/engine/internal/repository"
	appErr "github.com/fieldline/engine/pkg/errors"
	"github.com/fieldline/engine/pkg/logger"
)

// AutomationEvaluator is the slice of the automation engine the deal service
// needs. Kept narrow so the transition path depends on "evaluate" and
// nothing else.
type AutomationEvaluator interface {
	Evaluate(ctx context.Context, workspaceID uuid.UUID, event Event) (*EvalResult, error)
}

// DeviationChecker records AI-vs-human overrides on stage changes.
type DeviationChecker interface {
	CheckForDeviation(ctx context.Context, dealID uuid.UUID, newStage models.DealStage, actor Actor) error
}

// PricingLearner is the pricing-learning hook fired when a job is confirmed.
// Failures never propagate to the triggering operation.
type PricingLearner interface {
	OnJobConfirmed(ctx context.Context, dealID uuid.UUID, trigger, source string) error
}

// Deal service interface and DTOs.
type DealService interface {
	CreateDeal(ctx context.Context, input *CreateDealInput) (*models.Deal, error)
	GetDeal(ctx context.Context, dealID, workspaceID uuid.UUID) (*models.Deal, error)
	ListDealsWithHealth(ctx context.Context, workspaceID uuid.UUID) ([]DealView, error)

	// Stage lifecycle
	TransitionStage(ctx context.Context, dealID uuid.UUID, stageKey string, actor Actor) error
	ApproveCompletion(ctx context.Context, dealID uuid.UUID, actor Actor) error
	RejectCompletion(ctx context.Context, dealID uuid.UUID, actor Actor, reason string) error

	UpdateDealMetadata(ctx context.Context, dealID, workspaceID uuid.UUID, patch map[string]any, actor Actor) (*models.Deal, error)
	DeleteDeal(ctx context.Context, dealID uuid.UUID, actor Actor) error

	// PurgeExpiredDeleted hard-deletes deals whose DELETED grace period has
	// lapsed. Runs from the worker, never from the read path.
	PurgeExpiredDeleted(ctx context.Context) (int64, error)
}

type CreateDealInput struct {
	WorkspaceID uuid.UUID
	ContactID   uuid.UUID
	AssigneeID  *uuid.UUID
	Title       string
	Value       float64
	StageKey    string
	Address     string
	ScheduledAt *time.Time
	Metadata    map[string]any
	IsDraft     bool
	Actor       Actor
}

// DealView is the read model for the pipeline board: deal plus derived
// health and last-activity timestamp.
type DealView struct {
	Deal           models.Deal     `json:"deal"`
	StageKey       string          `json:"stage_key"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	Health         pipeline.Health `json:"health"`
}

type dealService struct {
	dealRepo      repository.DealRepository
	activityRepo  repository.ActivityRepository
	userRepo      repository.UserRepository
	contactRepo   repository.ContactRepository
	workspaceRepo repository.WorkspaceRepository

	evaluator  AutomationEvaluator
	deviations DeviationChecker
	pricing    PricingLearner
	notifier   Notifier

	automationTimeout time.Duration
	deletedRetention  time.Duration
	now               func() time.Time
}

// DealServiceDeps bundles the collaborators for NewDealService. Evaluator,
// deviations, pricing, and notifier may be nil; the corresponding side
// effects are skipped.
type DealServiceDeps struct {
	Deals      repository.DealRepository
	Activities repository.ActivityRepository
	Users      repository.UserRepository
	Contacts   repository.ContactRepository
	Workspaces repository.WorkspaceRepository

	Evaluator  AutomationEvaluator
	Deviations DeviationChecker
	Pricing    PricingLearner
	Notifier   Notifier

	AutomationTimeout time.Duration
	DeletedRetention  time.Duration
}

func NewDealService(deps DealServiceDeps) DealService {
	s := &dealService{
		dealRepo:          deps.Deals,
		activityRepo:      deps.Activities,
		userRepo:          deps.Users,
		contactRepo:       deps.Contacts,
		workspaceRepo:     deps.Workspaces,
		evaluator:         deps.Evaluator,
		deviations:        deps.Deviations,
		pricing:           deps.Pricing,
		notifier:          deps.Notifier,
		automationTimeout: deps.AutomationTimeout,
		deletedRetention:  deps.DeletedRetention,
		now:               time.Now,
	}
	if s.deletedRetention <= 0 {
		s.deletedRetention = 30 * 24 * time.Hour
	}
	return s
}

var _ DealService = (*dealService)(nil)

func (s *dealService) CreateDeal(ctx context.Context, input *CreateDealInput) (*models.Deal, error) {
	logger.L().Info("create deal",
		zap.String("workspace_id", input.WorkspaceID.String()),
		zap.String("title", input.Title),
	)

	if input.Title == "" {
		return nil, appErr.New(appErr.CodeInvalid, "title is required")
	}
	if input.Value < 0 {
		return nil, appErr.New(appErr.CodeInvalid, "value must be non-negative")
	}

	stage := models.StageNew
	if input.StageKey != "" {
		st, ok := pipeline.StageForKey(input.StageKey)
		if !ok {
			return nil, appErr.New(appErr.CodeInvalid, fmt.Sprintf("invalid stage: %s", input.StageKey))
		}
		stage = st
	}
	if stage == models.StageScheduled && input.AssigneeID == nil {
		return nil, appErr.New(appErr.CodeInvalid, "Assign a team member before moving to Scheduled.")
	}

	var contact models.Contact
	if err := s.contactRepo.GetInWorkspace(ctx, input.ContactID, input.WorkspaceID, &contact); err != nil {
		return nil, err
	}

	d := &models.Deal{
		WorkspaceID: input.WorkspaceID,
		ContactID:   input.ContactID,
		AssigneeID:  input.AssigneeID,
		Title:       input.Title,
		Value:       input.Value,
		Stage:       stage,
		Address:     input.Address,
		ScheduledAt: input.ScheduledAt,
		Metadata:    datatypes.JSONMap(input.Metadata),
		IsDraft:     input.IsDraft,
	}
	if err := s.dealRepo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logActivity(ctx, d, input.Actor, models.ActivityNote, "Deal created",
		fmt.Sprintf("Created deal %q worth $%.2f", d.Title, d.Value))

	if stage == models.StageNew && !d.IsDraft && s.evaluator != nil {
		id := d.ID
		ws := d.WorkspaceID
		bestEffort(ctx, "automation new_lead", s.automationTimeout, func(ctx context.Context) error {
			_, err := s.evaluator.Evaluate(ctx, ws, Event{Type: EventNewLead, DealID: &id, Stage: models.StageNew})
			return err
		})
	}

	logger.L().Info("deal created", zap.String("deal_id", d.ID.String()))
	return d, nil
}

func (s *dealService) GetDeal(ctx context.Context, dealID, workspaceID uuid.UUID) (*models.Deal, error) {
	var d models.Deal
	if err := s.dealRepo.GetInWorkspace(ctx, dealID, workspaceID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *dealService) ListDealsWithHealth(ctx context.Context, workspaceID uuid.UUID) ([]DealView, error) {
	deals, err := s.dealRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.HealthConfig{}
	var ws models.Workspace
	if err := s.workspaceRepo.GetByID(ctx, workspaceID, &ws); err == nil {
		cfg.DaysUntilStale = ws.DaysUntilStale
		cfg.DaysUntilRotting = ws.DaysUntilRotting
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
	views := make([]DealView, 0, len(deals))
	for _, d := range deals {
		last := d.CreatedAt
		if a, ok := latest[d.ID]; ok {
			last = a.CreatedAt
		}
		key, _ := pipeline.KeyForStage(d.Stage)
		views = append(views, DealView{
			Deal:           d,
			StageKey:       key,
			LastActivityAt: last,
			Health:         pipeline.ComputeHealth(last, now, cfg),
		})
	}
	return views, nil
}

func (s *dealService) TransitionStage(ctx context.Context, dealID uuid.UUID, stageKey string, actor Actor) error {
	target, ok := pipeline.StageForKey(stageKey)
	if !ok {
		return appErr.New(appErr.CodeInvalid, fmt.Sprintf("invalid stage: %s", stageKey))
	}

	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, dealID, &d); err != nil {
		return err
	}

	user, err := s.resolveActor(ctx, actor, &d)
	if err != nil {
		return err
	}
	if user != nil && actor.Name == "" {
		actor.Name = user.Name
	}

	// A deal waiting on approval only leaves that stage via approve/reject.
	if d.Stage == models.StagePendingCompletion {
		return appErr.New(appErr.CodeConflict, "deal is awaiting completion approval")
	}

	if target == models.StageScheduled && d.AssigneeID == nil {
		return appErr.New(appErr.CodeInvalid, "Assign a team member before moving to Scheduled.")
	}

	// Team members cannot close a deal directly; the completion goes to a
	// manager for sign-off instead.
	if target == models.StageWon && user != nil && !user.Role.CanApproveCompletions() {
		return s.requestCompletion(ctx, &d, user, actor)
	}

	previous := d.Stage
	now := s.now()
	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	d.Metadata[models.MetaPreviousStage] = string(previous)
	d.Stage = target
	d.StageChangedAt = &now
	if err := s.dealRepo.Update(ctx, &d); err != nil {
		return err
	}

	label := pipeline.Label(target)
	s.logActivity(ctx, &d, actor, models.ActivityNote, "Moved to "+label,
		fmt.Sprintf("%s moved %q from %s to %s", actor.Label(), d.Title, pipeline.Label(previous), label))

	// Transition has committed; everything below is best-effort.
	if s.evaluator != nil {
		stage := d.Stage
		ws := d.WorkspaceID
		id := d.ID
		bestEffort(ctx, "automation stage_change", s.automationTimeout, func(ctx context.Context) error {
			_, err := s.evaluator.Evaluate(ctx, ws, Event{Type: EventStageChange, DealID: &id, Stage: stage})
			return err
		})
	}
	if s.deviations != nil && actor.IsUser() {
		stage := d.Stage
		id := d.ID
		bestEffort(ctx, "deviation check", s.automationTimeout, func(ctx context.Context) error {
			return s.deviations.CheckForDeviation(ctx, id, stage, actor)
		})
	}
	if target == models.StageWon && s.pricing != nil {
		id := d.ID
		bestEffort(ctx, "pricing learning", s.automationTimeout, func(ctx context.Context) error {
			return s.pricing.OnJobConfirmed(ctx, id, "completed", "transitionStage")
		})
	}
	return nil
}

// requestCompletion parks the deal in PENDING_COMPLETION with enough
// bookkeeping in metadata to revert it on rejection.
func (s *dealService) requestCompletion(ctx context.Context, d *models.Deal, requester *models.User, actor Actor) error {
	now := s.now()
	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	d.Metadata[models.MetaPreviousStage] = string(d.Stage)
	d.Metadata[models.MetaCompletionRequestedBy] = requester.ID.String()
	d.Metadata[models.MetaCompletionRequestedAt] = now.UTC().Format(time.RFC3339)
	d.Stage = models.StagePendingCompletion
	d.StageChangedAt = &now
	if err := s.dealRepo.Update(ctx, d); err != nil {
		return err
	}

	s.logActivity(ctx, d, actor, models.ActivityNote, "Moved to Pending approval",
		fmt.Sprintf("%s submitted %q for completion approval", actor.Label(), d.Title))
	return nil
}

func (s *dealService) ApproveCompletion(ctx context.Context, dealID uuid.UUID, actor Actor) error {
	d, approver, err := s.loadPending(ctx, dealID, actor)
	if err != nil {
		return err
	}

	requesterID := s.pendingRequester(d)

	now := s.now()
	delete(d.Metadata, models.MetaPreviousStage)
	delete(d.Metadata, models.MetaCompletionRequestedBy)
	delete(d.Metadata, models.MetaCompletionRequestedAt)
	d.Stage = models.StageWon
	d.StageChangedAt = &now
	if err := s.dealRepo.Update(ctx, d); err != nil {
		return err
	}

	s.logActivity(ctx, d, actor, models.ActivityNote, "Completion approved",
		fmt.Sprintf("%s approved completion of %q", actor.Label(), d.Title))

	if requesterID != nil && *requesterID != approver.ID && s.notifier != nil {
		rid := *requesterID
		title := d.Title
		bestEffort(ctx, "approval notification", s.automationTimeout, func(ctx context.Context) error {
			return s.notifier.Notify(ctx, rid, "Completion approved",
				fmt.Sprintf("Your completion of %q was approved.", title), models.NotifySuccess, "")
		})
	}
	if s.pricing != nil {
		id := d.ID
		bestEffort(ctx, "pricing learning", s.automationTimeout, func(ctx context.Context) error {
			return s.pricing.OnJobConfirmed(ctx, id, "completed", "approveCompletion")
		})
	}
	return nil
}

func (s *dealService) RejectCompletion(ctx context.Context, dealID uuid.UUID, actor Actor, reason string) error {
	d, approver, err := s.loadPending(ctx, dealID, actor)
	if err != nil {
		return err
	}

	requesterID := s.pendingRequester(d)

	// Revert to the stage recorded when the request was made.
	revertTo := models.StageInvoiced
	if prev, ok := d.MetaString(models.MetaPreviousStage); ok {
		if st := models.DealStage(prev); st.Valid() {
			revertTo = st
		}
	}

	now := s.now()
	delete(d.Metadata, models.MetaPreviousStage)
	delete(d.Metadata, models.MetaCompletionRequestedBy)
	delete(d.Metadata, models.MetaCompletionRequestedAt)
	d.Metadata[models.MetaCompletionRejectedBy] = approver.ID.String()
	d.Metadata[models.MetaCompletionRejectedAt] = now.UTC().Format(time.RFC3339)
	if reason != "" {
		d.Metadata[models.MetaRejectionReason] = reason
	}
	d.Stage = revertTo
	d.StageChangedAt = &now
	if err := s.dealRepo.Update(ctx, d); err != nil {
		return err
	}

	content := fmt.Sprintf("%s rejected completion of %q", actor.Label(), d.Title)
	if reason != "" {
		content += ": " + reason
	}
	s.logActivity(ctx, d, actor, models.ActivityNote, "Completion rejected", content)

	if requesterID != nil && *requesterID != approver.ID && s.notifier != nil {
		rid := *requesterID
		title := d.Title
		msg := fmt.Sprintf("Your completion of %q was rejected.", title)
		if reason != "" {
			msg += " Reason: " + reason
		}
		bestEffort(ctx, "rejection notification", s.automationTimeout, func(ctx context.Context) error {
			return s.notifier.Notify(ctx, rid, "Completion rejected", msg, models.NotifyWarning, "")
		})
	}
	return nil
}

// loadPending validates the approval preconditions shared by approve and
// reject: the actor is a manager or owner in the deal's workspace and the
// deal is actually pending.
func (s *dealService) loadPending(ctx context.Context, dealID uuid.UUID, actor Actor) (*models.Deal, *models.User, error) {
	if !actor.IsUser() {
		return nil, nil, appErr.New(appErr.CodeUnauthorized, "completion review requires a signed-in user")
	}
	var user models.User
	if err := s.userRepo.GetByID(ctx, *actor.UserID, &user); err != nil {
		return nil, nil, appErr.New(appErr.CodeUnauthorized, "acting user not found")
	}
	if !user.Role.CanApproveCompletions() {
		return nil, nil, appErr.New(appErr.CodeUnauthorized, "only owners and managers can review completions")
	}

	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, dealID, &d); err != nil {
		return nil, nil, err
	}
	if d.WorkspaceID != user.WorkspaceID {
		return nil, nil, appErr.New(appErr.CodeForbidden, "deal belongs to another workspace")
	}
	if d.Stage != models.StagePendingCompletion {
		return nil, nil, appErr.New(appErr.CodeConflict, "deal is not pending completion")
	}
	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	return &d, &user, nil
}

func (s *dealService) pendingRequester(d *models.Deal) *uuid.UUID {
	raw, ok := d.MetaString(models.MetaCompletionRequestedBy)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func (s *dealService) UpdateDealMetadata(ctx context.Context, dealID, workspaceID uuid.UUID, patch map[string]any, actor Actor) (*models.Deal, error) {
	var d models.Deal
	if err := s.dealRepo.GetInWorkspace(ctx, dealID, workspaceID, &d); err != nil {
		return nil, err
	}

	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	notesChanged := false
	for k, v := range patch {
		if k == models.MetaNotes && d.Metadata[k] != v {
			notesChanged = true
		}
		d.Metadata[k] = v
	}
	if err := s.dealRepo.Update(ctx, &d); err != nil {
		return nil, err
	}

	title := "Details updated"
	if notesChanged {
		title = "Notes updated"
	}
	s.logActivity(ctx, &d, actor, models.ActivityNote, title,
		fmt.Sprintf("%s updated %q", actor.Label(), d.Title))
	return &d, nil
}

func (s *dealService) DeleteDeal(ctx context.Context, dealID uuid.UUID, actor Actor) error {
	return s.TransitionStage(ctx, dealID, "deleted", actor)
}

func (s *dealService) PurgeExpiredDeleted(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.deletedRetention)
	n, err := s.dealRepo.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.L().Info("purged deleted deals", zap.Int64("count", n))
	}
	return n, nil
}

// resolveActor loads the acting user when the actor is one, and enforces
// tenant isolation: a user acting on a deal outside their workspace gets
// not found, never a hint the deal exists.
func (s *dealService) resolveActor(ctx context.Context, actor Actor, d *models.Deal) (*models.User, error) {
	if !actor.IsUser() {
		return nil, nil
	}
	var user models.User
	if err := s.userRepo.GetByID(ctx, *actor.UserID, &user); err != nil {
		// Unresolvable actors still get their action applied, attributed
		// to "Someone".
		logger.L().Warn("acting user not resolvable", zap.String("user_id", actor.UserID.String()))
		return nil, nil
	}
	if user.WorkspaceID != d.WorkspaceID {
		return nil, appErr.New(appErr.CodeNotFound, "deal not found")
	}
	return &user, nil
}

// logActivity appends an audit entry for a deal mutation. Activity writes
// are part of every mutating operation's contract, but a failed append must
// not unwind the already-committed mutation.
func (s *dealService) logActivity(ctx context.Context, d *models.Deal, actor Actor, typ models.ActivityType, title, content string) {
	a := &models.Activity{
		Type:      typ,
		Title:     title,
		Content:   content,
		DealID:    &d.ID,
		ContactID: &d.ContactID,
		UserID:    actor.UserID,
	}
	if err := s.activityRepo.Create(ctx, a); err != nil {
		logger.L().Error("append activity failed",
			zap.String("deal_id", d.ID.String()),
			zap.String("title", title),
			zap.Error(err),
		)
	}
}
