package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
	appErr "github.com/fieldline/engine/pkg/errors"
	"github.com/fieldline/engine/pkg/logger"
)

type ActivityService interface {
	Log(ctx context.Context, input *LogActivityInput) (*models.Activity, error)
	ListByDeal(ctx context.Context, dealID, workspaceID uuid.UUID, limit int) ([]models.Activity, error)
	ListByContact(ctx context.Context, contactID, workspaceID uuid.UUID, limit int) ([]models.Activity, error)

	// UndoLastAgentAction removes the most recent agent-authored entry on a
	// deal. Human-authored entries are immutable.
	UndoLastAgentAction(ctx context.Context, dealID, workspaceID uuid.UUID) (*models.Activity, error)
}

type LogActivityInput struct {
	WorkspaceID uuid.UUID
	Type        models.ActivityType
	Title       string
	Content     string
	DealID      *uuid.UUID
	ContactID   *uuid.UUID
	UserID      *uuid.UUID
}

type activityService struct {
	activityRepo repository.ActivityRepository
	dealRepo     repository.DealRepository
	contactRepo  repository.ContactRepository
}

func NewActivityService(activities repository.ActivityRepository, deals repository.DealRepository, contacts repository.ContactRepository) ActivityService {
	return &activityService{activityRepo: activities, dealRepo: deals, contactRepo: contacts}
}

var _ ActivityService = (*activityService)(nil)

func (s *activityService) Log(ctx context.Context, input *LogActivityInput) (*models.Activity, error) {
	if !input.Type.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "invalid activity type: "+string(input.Type))
	}
	if input.Title == "" {
		return nil, appErr.New(appErr.CodeInvalid, "title is required")
	}
	if input.DealID == nil && input.ContactID == nil {
		return nil, appErr.New(appErr.CodeInvalid, "activity needs a deal or a contact")
	}

	// Resolve targets through the workspace so an activity can never be
	// attached across tenants. Logging against a deal fills in its contact.
	dealID := input.DealID
	contactID := input.ContactID
	if dealID != nil {
		var d models.Deal
		if err := s.dealRepo.GetInWorkspace(ctx, *dealID, input.WorkspaceID, &d); err != nil {
			return nil, err
		}
		if contactID == nil {
			contactID = &d.ContactID
		}
	} else if contactID != nil {
		var c models.Contact
		if err := s.contactRepo.GetInWorkspace(ctx, *contactID, input.WorkspaceID, &c); err != nil {
			return nil, err
		}
	}

	a := &models.Activity{
		Type:      input.Type,
		Title:     input.Title,
		Content:   input.Content,
		DealID:    dealID,
		ContactID: contactID,
		UserID:    input.UserID,
	}
	if err := s.activityRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *activityService) ListByDeal(ctx context.Context, dealID, workspaceID uuid.UUID, limit int) ([]models.Activity, error) {
	var d models.Deal
	if err := s.dealRepo.GetInWorkspace(ctx, dealID, workspaceID, &d); err != nil {
		return nil, err
	}
	return s.activityRepo.ListByDeal(ctx, dealID, limit)
}

func (s *activityService) ListByContact(ctx context.Context, contactID, workspaceID uuid.UUID, limit int) ([]models.Activity, error) {
	var c models.Contact
	if err := s.contactRepo.GetInWorkspace(ctx, contactID, workspaceID, &c); err != nil {
		return nil, err
	}
	return s.activityRepo.ListByContact(ctx, contactID, limit)
}

func (s *activityService) UndoLastAgentAction(ctx context.Context, dealID, workspaceID uuid.UUID) (*models.Activity, error) {
	var d models.Deal
	if err := s.dealRepo.GetInWorkspace(ctx, dealID, workspaceID, &d); err != nil {
		return nil, err
	}

	var a models.Activity
	if err := s.activityRepo.LatestAgentByDeal(ctx, dealID, &a); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeNotFound, "no agent activity to undo")
		}
		return nil, err
	}
	if err := s.activityRepo.DeleteByID(ctx, a.ID); err != nil {
		return nil, err
	}

	logger.L().Info("agent activity undone",
		zap.String("deal_id", dealID.String()),
		zap.String("activity_id", a.ID.String()),
	)
	return &a, nil
}
