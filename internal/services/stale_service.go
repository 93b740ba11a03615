package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/pipeline"
	"github.com/fieldline/engine/internal/repository"
	appErr "github.com/fieldline/engine/pkg/errors"
	"github.com/fieldline/engine/pkg/logger"
)

// StaleScanResult reports one sweep: how many scheduled deals were overdue
// and how many rows the batch update actually flagged. The counts diverge
// when another writer flags a row between the listing and the update.
type StaleScanResult struct {
	Overdue int   `json:"overdue"`
	Updated int64 `json:"updated"`
}

// StaleJobService flags scheduled jobs whose appointment time passed without
// an outcome, and records what actually happened once someone checks.
type StaleJobService interface {
	// ScanAndFlagStale marks overdue scheduled deals as stale and notifies
	// each affected workspace owner. Re-running is a no-op for deals
	// already flagged. A nil workspaceID scans every workspace.
	ScanAndFlagStale(ctx context.Context, workspaceID *uuid.UUID) (StaleScanResult, error)

	ListStaleJobs(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error)

	// Reconcile records the real-world outcome of a stale job and moves the
	// deal to the stage that outcome implies. Owner-only.
	Reconcile(ctx context.Context, dealID uuid.UUID, outcome models.ActualOutcome, notes string, actor Actor) (*models.Deal, error)
}

type staleJobService struct {
	dealRepo      repository.DealRepository
	activityRepo  repository.ActivityRepository
	userRepo      repository.UserRepository
	workspaceRepo repository.WorkspaceRepository
	notifier      Notifier
	pricing       PricingLearner

	dispatchTimeout time.Duration
	now             func() time.Time
}

func NewStaleJobService(
	deals repository.DealRepository,
	activities repository.ActivityRepository,
	users repository.UserRepository,
	workspaces repository.WorkspaceRepository,
	notifier Notifier,
	pricing PricingLearner,
	dispatchTimeout time.Duration,
) StaleJobService {
	return &staleJobService{
		dealRepo:        deals,
		activityRepo:    activities,
		userRepo:        users,
		workspaceRepo:   workspaces,
		notifier:        notifier,
		pricing:         pricing,
		dispatchTimeout: dispatchTimeout,
		now:             time.Now,
	}
}

var _ StaleJobService = (*staleJobService)(nil)

func (s *staleJobService) ScanAndFlagStale(ctx context.Context, workspaceID *uuid.UUID) (StaleScanResult, error) {
	overdue, err := s.dealRepo.ListOverdueScheduled(ctx, workspaceID, s.now())
	if err != nil {
		return StaleScanResult{}, err
	}
	if len(overdue) == 0 {
		return StaleScanResult{}, nil
	}

	ids := make([]uuid.UUID, len(overdue))
	byWorkspace := make(map[uuid.UUID]int)
	for i, d := range overdue {
		ids[i] = d.ID
		byWorkspace[d.WorkspaceID]++
	}
	flagged, err := s.dealRepo.MarkStale(ctx, ids)
	if err != nil {
		return StaleScanResult{Overdue: len(overdue)}, err
	}

	logger.L().Info("stale scan flagged jobs",
		zap.Int("overdue", len(overdue)),
		zap.Int64("flagged", flagged),
	)

	if s.notifier != nil {
		for ws, count := range byWorkspace {
			ws, count := ws, count
			bestEffort(ctx, "stale scan notification", s.dispatchTimeout, func(ctx context.Context) error {
				var owner models.User
				if err := s.userRepo.GetWorkspaceOwner(ctx, ws, &owner); err != nil {
					return err
				}
				msg := fmt.Sprintf("%d scheduled job(s) passed their appointment time without an outcome.", count)
				return s.notifier.Notify(ctx, owner.ID, "Jobs need attention", msg, models.NotifyWarning, "/jobs/stale")
			})
		}
	}
	return StaleScanResult{Overdue: len(overdue), Updated: flagged}, nil
}

func (s *staleJobService) ListStaleJobs(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error) {
	deals, err := s.dealRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	stale := deals[:0]
	for _, d := range deals {
		if d.IsStale && d.ActualOutcome == nil {
			stale = append(stale, d)
		}
	}
	return stale, nil
}

func (s *staleJobService) Reconcile(ctx context.Context, dealID uuid.UUID, outcome models.ActualOutcome, notes string, actor Actor) (*models.Deal, error) {
	if !outcome.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "invalid outcome: "+string(outcome))
	}
	if !actor.IsUser() {
		return nil, appErr.New(appErr.CodeUnauthorized, "reconciliation requires a signed-in user")
	}

	var d models.Deal
	if err := s.dealRepo.GetByID(ctx, dealID, &d); err != nil {
		return nil, err
	}

	// Only the workspace owner reconciles. A non-owner, or an owner of a
	// different workspace, gets the same answer as a missing deal.
	var ws models.Workspace
	if err := s.workspaceRepo.GetOwnedBy(ctx, d.WorkspaceID, *actor.UserID, &ws); err != nil {
		return nil, appErr.New(appErr.CodeNotFound, "deal not found or not yours to reconcile")
	}

	stage, clearSchedule, ok := pipeline.OutcomeStage(outcome)
	if !ok {
		return nil, appErr.New(appErr.CodeInvalid, "invalid outcome: "+string(outcome))
	}

	now := s.now()
	d.ActualOutcome = &outcome
	d.IsStale = false
	d.Stage = stage
	d.StageChangedAt = &now
	if notes != "" {
		d.OutcomeNotes = &notes
	}
	if clearSchedule {
		d.ScheduledAt = nil
	}
	if err := s.dealRepo.Update(ctx, &d); err != nil {
		return nil, err
	}

	a := &models.Activity{
		Type:      models.ActivityNote,
		Title:     "Job Reconciled",
		Content:   fmt.Sprintf("Outcome recorded as %s. Deal moved to %s.", outcome, pipeline.Label(stage)),
		DealID:    &d.ID,
		ContactID: &d.ContactID,
		UserID:    actor.UserID,
	}
	if err := s.activityRepo.Create(ctx, a); err != nil {
		logger.L().Error("append reconcile activity failed", zap.String("deal_id", d.ID.String()), zap.Error(err))
	}

	if outcome == models.OutcomeCompleted && s.pricing != nil {
		id := d.ID
		bestEffort(ctx, "pricing learning", s.dispatchTimeout, func(ctx context.Context) error {
			return s.pricing.OnJobConfirmed(ctx, id, "completed", "reconcile")
		})
	}
	return &d, nil
}
