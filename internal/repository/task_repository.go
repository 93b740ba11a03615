package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// TaskRepository persists follow-up reminders. Workspace scoping happens via
// the deal/contact back-references: tasks have no workspace column of their
// own, so workspace queries join through deals and contacts.
type TaskRepository interface {
	BaseRepository[models.Task]
	GetInWorkspace(ctx context.Context, id, workspaceID uuid.UUID, dest *models.Task) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, completed *bool, limit int) ([]models.Task, error)
	ListOverdueByWorkspace(ctx context.Context, workspaceID uuid.UUID, now time.Time) ([]models.Task, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
}

type taskRepository struct {
	BaseRepository[models.Task]
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{BaseRepository: NewBaseRepository[models.Task](db), db: db}
}

func (r *taskRepository) workspaceScope(workspaceID uuid.UUID) *gorm.DB {
	return r.db.
		Where(`(deal_id IN (SELECT id FROM deals WHERE workspace_id = @ws)
			OR contact_id IN (SELECT id FROM contacts WHERE workspace_id = @ws))`,
			map[string]any{"ws": workspaceID})
}

func (r *taskRepository) GetInWorkspace(ctx context.Context, id, workspaceID uuid.UUID, dest *models.Task) error {
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where(r.workspaceScope(workspaceID)).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "task not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get task failed")
	}
	return nil
}

func (r *taskRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, completed *bool, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Where(r.workspaceScope(workspaceID))
	if completed != nil {
		q = q.Where("completed = ?", *completed)
	}
	var out []models.Task
	if err := q.Order("due_at ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list tasks failed")
	}
	return out, nil
}

func (r *taskRepository) ListOverdueByWorkspace(ctx context.Context, workspaceID uuid.UUID, now time.Time) ([]models.Task, error) {
	var out []models.Task
	err := r.db.WithContext(ctx).
		Where(r.workspaceScope(workspaceID)).
		Where("completed = ? AND due_at IS NOT NULL AND due_at < ?", false, now).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list overdue tasks failed")
	}
	return out, nil
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{"completed": true, "completed_at": at})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "complete task failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "task not found")
	}
	return nil
}
