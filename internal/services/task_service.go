package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
	appErr "github.com/fieldline/engine/pkg/errors"
)

type TaskService interface {
	CreateTask(ctx context.Context, input *CreateTaskInput) (*models.Task, error)
	ListTasks(ctx context.Context, workspaceID uuid.UUID, completed *bool, limit int) ([]models.Task, error)
	ListOverdue(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error)
	CompleteTask(ctx context.Context, id, workspaceID uuid.UUID) error
}

type CreateTaskInput struct {
	WorkspaceID uuid.UUID
	Title       string
	Description string
	DueAt       *time.Time
	DealID      *uuid.UUID
	ContactID   *uuid.UUID
}

type taskService struct {
	taskRepo    repository.TaskRepository
	dealRepo    repository.DealRepository
	contactRepo repository.ContactRepository
	now         func() time.Time
}

func NewTaskService(tasks repository.TaskRepository, deals repository.DealRepository, contacts repository.ContactRepository) TaskService {
	return &taskService{taskRepo: tasks, dealRepo: deals, contactRepo: contacts, now: time.Now}
}

var _ TaskService = (*taskService)(nil)

func (s *taskService) CreateTask(ctx context.Context, input *CreateTaskInput) (*models.Task, error) {
	if input.Title == "" {
		return nil, appErr.New(appErr.CodeInvalid, "title is required")
	}
	if input.DealID == nil && input.ContactID == nil {
		return nil, appErr.New(appErr.CodeInvalid, "task needs a deal or a contact")
	}

	contactID := input.ContactID
	if input.DealID != nil {
		var d models.Deal
		if err := s.dealRepo.GetInWorkspace(ctx, *input.DealID, input.WorkspaceID, &d); err != nil {
			return nil, err
		}
		if contactID == nil {
			contactID = &d.ContactID
		}
	} else {
		var c models.Contact
		if err := s.contactRepo.GetInWorkspace(ctx, *contactID, input.WorkspaceID, &c); err != nil {
			return nil, err
		}
	}

	t := &models.Task{
		Title:       input.Title,
		Description: input.Description,
		DueAt:       input.DueAt,
		DealID:      input.DealID,
		ContactID:   contactID,
	}
	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *taskService) ListTasks(ctx context.Context, workspaceID uuid.UUID, completed *bool, limit int) ([]models.Task, error) {
	return s.taskRepo.ListByWorkspace(ctx, workspaceID, completed, limit)
}

func (s *taskService) ListOverdue(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error) {
	return s.taskRepo.ListOverdueByWorkspace(ctx, workspaceID, s.now())
}

func (s *taskService) CompleteTask(ctx context.Context, id, workspaceID uuid.UUID) error {
	var t models.Task
	if err := s.taskRepo.GetInWorkspace(ctx, id, workspaceID, &t); err != nil {
		return err
	}
	return s.taskRepo.Complete(ctx, id, s.now())
}
