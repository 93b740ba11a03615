package services

import (
	"context"
	"fmt"
	"math"
	"strings"
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

// declineRecommendations are the agent verdicts that count as "the AI said
// no" when a human pushes the deal forward anyway.
var declineRecommendations = map[string]bool{
	"DECLINE":     true,
	"OUT_OF_AREA": true,
}

// positiveStages are the stages that signal the human accepted the job.
var positiveStages = map[models.DealStage]bool{
	models.StageScheduled: true,
	models.StagePipeline:  true,
	models.StageInvoiced:  true,
	models.StageWon:       true,
}

// LearningService closes the feedback loop between the agent and its humans:
// it records when a user overrides an AI recommendation, lets the owner
// resolve those deviations, and turns confirmed job values into pricing
// suggestions.
type LearningService interface {
	DeviationChecker
	PricingLearner

	ListUnresolvedDeviations(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.DeviationEvent, error)

	// ResolveDeviation records the human verdict. REMOVE_RULE cascades a
	// delete of the negative-scope rules that produced the recommendation.
	ResolveDeviation(ctx context.Context, id, workspaceID uuid.UUID, action models.ResolvedAction) error

	ListBusinessRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory) ([]models.BusinessRule, error)
}

type learningService struct {
	deviationRepo repository.DeviationRepository
	dealRepo      repository.DealRepository
	userRepo      repository.UserRepository
	workspaceRepo repository.WorkspaceRepository
	taskRepo      repository.TaskRepository
	activityRepo  repository.ActivityRepository
	notifier      Notifier
	now           func() time.Time
}

func NewLearningService(
	deviations repository.DeviationRepository,
	deals repository.DealRepository,
	users repository.UserRepository,
	workspaces repository.WorkspaceRepository,
	tasks repository.TaskRepository,
	activities repository.ActivityRepository,
	notifier Notifier,
) LearningService {
	return &learningService{
		deviationRepo: deviations,
		dealRepo:      deals,
		userRepo:      users,
		workspaceRepo: workspaces,
		taskRepo:      tasks,
		activityRepo:  activities,
		notifier:      notifier,
		now:           time.Now,
	}
}

var _ LearningService = (*learningService)(nil)

// CheckForDeviation fires after a human stage change. If the agent had
// recommended declining this job and the human moved it to an accepting
// stage, the disagreement is recorded for review and the stored
// recommendation is cleared so one override produces one event.
func (s *learningService) CheckForDeviation(ctx context.Context, dealID uuid.UUID, newStage models.DealStage, actor Actor) error {
	if !positiveStages[newStage] {
		return nil
	}

	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, dealID, &d); err != nil {
		return err
	}
	rec, ok := d.MetaString(models.MetaAIRecommendation)
	if !ok || !declineRecommendations[rec] {
		return nil
	}

	ev := &models.DeviationEvent{
		DealID:           d.ID,
		WorkspaceID:      d.WorkspaceID,
		AIRecommendation: rec,
		UserAction:       "Moved to " + pipeline.Label(newStage),
	}
	if reason, ok := d.MetaString(models.MetaAIRecommendReason); ok && reason != "" {
		ev.RuleContent = &reason
	}
	if err := s.deviationRepo.Create(ctx, ev); err != nil {
		return err
	}

	delete(d.Metadata, models.MetaAIRecommendation)
	if err := s.dealRepo.Update(ctx, &d); err != nil {
		logger.L().Warn("clear ai recommendation failed", zap.String("deal_id", d.ID.String()), zap.Error(err))
	}

	logger.L().Info("deviation recorded",
		zap.String("deal_id", d.ID.String()),
		zap.String("recommendation", rec),
		zap.String("user_action", ev.UserAction),
	)

	if s.notifier != nil {
		var owner models.User
		if err := s.userRepo.GetWorkspaceOwner(ctx, d.WorkspaceID, &owner); err == nil {
			msg := fmt.Sprintf("The agent recommended %s for %q, but %s moved it forward. Review whether the rule still holds.",
				rec, d.Title, actor.Label())
			if err := s.notifier.Notify(ctx, owner.ID, "Agent override detected", msg, models.NotifyWarning, "/deviations"); err != nil {
				logger.L().Warn("deviation notification failed", zap.Error(err))
			}
		}
	}
	return nil
}

func (s *learningService) ListUnresolvedDeviations(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.DeviationEvent, error) {
	return s.deviationRepo.ListUnresolved(ctx, workspaceID, limit)
}

func (s *learningService) ResolveDeviation(ctx context.Context, id, workspaceID uuid.UUID, action models.ResolvedAction) error {
	if action != models.ResolveRemoveRule && action != models.ResolveKeepRule {
		return appErr.New(appErr.CodeInvalid, "invalid resolution action: "+string(action))
	}

	var ev models.DeviationEvent
	if err := s.deviationRepo.GetByID(ctx, id, &ev); err != nil {
		return err
	}
	if ev.WorkspaceID != workspaceID {
		return appErr.New(appErr.CodeNotFound, "deviation event not found")
	}

	if err := s.deviationRepo.Resolve(ctx, id, action); err != nil {
		return err
	}

	if action == models.ResolveRemoveRule && ev.RuleContent != nil && *ev.RuleContent != "" {
		n, err := s.deviationRepo.DeleteMatchingRules(ctx, workspaceID, models.RuleNegativeScope, *ev.RuleContent)
		if err != nil {
			return err
		}
		logger.L().Info("negative-scope rules removed",
			zap.String("deviation_id", id.String()),
			zap.Int64("count", n),
		)
	}
	return nil
}

func (s *learningService) ListBusinessRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory) ([]models.BusinessRule, error) {
	return s.deviationRepo.ListRules(ctx, workspaceID, category)
}

// roundToFive rounds a dollar amount to the nearest $5.
func roundToFive(v float64) float64 {
	return math.Round(v/5) * 5
}

// OnJobConfirmed is the pricing-learning hook. A confirmed job's value
// becomes a suggested price band (±10%, rounded to $5): the owner gets a
// review task, the deal an audit entry, and the knowledge base a PRICING
// rule. Idempotent per deal via a metadata stamp.
func (s *learningService) OnJobConfirmed(ctx context.Context, dealID uuid.UUID, trigger, source string) error {
	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, dealID, &d); err != nil {
		return err
	}
	if d.IsDraft {
		return nil
	}
	if trigger == "completed" && d.Stage != models.StageWon {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(d.Title), "manual revenue entry") {
		return nil
	}
	if d.Value <= 0 {
		return nil
	}
	if _, done := d.MetaString(models.MetaPricingSuggestedAt); done {
		return nil
	}

	var ws models.Workspace
	if err := s.workspaceRepo.GetByID(ctx, d.WorkspaceID, &ws); err != nil {
		return err
	}
	if !ws.AutoLearnPricing {
		return nil
	}

	low := roundToFive(d.Value * 0.9)
	high := roundToFive(d.Value * 1.1)
	if high <= low {
		high = low + 5
	}

	due := s.now().Add(24 * time.Hour)
	task := &models.Task{
		Title: fmt.Sprintf("Review pricing for %q", d.Title),
		Description: fmt.Sprintf("Observed job value: $%.0f. Suggested price band: $%.0f-$%.0f. Review your pricing settings.",
			d.Value, low, high),
		DueAt:     &due,
		DealID:    &d.ID,
		ContactID: &d.ContactID,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return err
	}

	a := &models.Activity{
		Type:      models.ActivityNote,
		Title:     "Pricing suggestion created",
		Content:   fmt.Sprintf("Observed $%.0f on %s job, suggested $%.0f-$%.0f.", d.Value, trigger, low, high),
		DealID:    &d.ID,
		ContactID: &d.ContactID,
	}
	if err := s.activityRepo.Create(ctx, a); err != nil {
		logger.L().Warn("append pricing activity failed", zap.String("deal_id", d.ID.String()), zap.Error(err))
	}

	rule := &models.BusinessRule{
		WorkspaceID: d.WorkspaceID,
		Category:    models.RulePricing,
		RuleContent: fmt.Sprintf("Jobs like %q typically run $%.0f to $%.0f (confirmed at $%.2f via %s).",
			d.Title, low, high, d.Value, source),
	}
	if err := s.deviationRepo.CreateRule(ctx, rule); err != nil {
		return err
	}

	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	d.Metadata[models.MetaPricingSuggestedAt] = s.now().UTC().Format(time.RFC3339)
	if err := s.dealRepo.Update(ctx, &d); err != nil {
		return err
	}

	logger.L().Info("pricing suggestion recorded",
		zap.String("deal_id", d.ID.String()),
		zap.String("trigger", trigger),
		zap.Float64("low", low),
		zap.Float64("high", high),
	)

	if s.notifier != nil {
		var owner models.User
		if err := s.userRepo.GetWorkspaceOwner(ctx, d.WorkspaceID, &owner); err == nil {
			msg := fmt.Sprintf("Based on %q ($%.2f), consider quoting $%.0f to $%.0f for similar work.",
				d.Title, d.Value, low, high)
			if err := s.notifier.Notify(ctx, owner.ID, "Pricing suggestion", msg, models.NotifyInfo, "/settings/pricing"); err != nil {
				logger.L().Warn("pricing notification failed", zap.Error(err))
			}
		}
	}
	return nil
}
