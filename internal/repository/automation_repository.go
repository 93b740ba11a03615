package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// AutomationRepository persists trigger/action rules.
type AutomationRepository interface {
	BaseRepository[models.Automation]
	GetInWorkspace(ctx context.Context, id, workspaceID uuid.UUID, dest *models.Automation) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error)
	ListEnabledByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	TouchLastFired(ctx context.Context, id uuid.UUID, at time.Time) error
}

type automationRepository struct {
	BaseRepository[models.Automation]
	db *gorm.DB
}

func NewAutomationRepository(db *gorm.DB) AutomationRepository {
	return &automationRepository{BaseRepository: NewBaseRepository[models.Automation](db), db: db}
}

func (r *automationRepository) GetInWorkspace(ctx context.Context, id, workspaceID uuid.UUID, dest *models.Automation) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "automation not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get automation failed")
	}
	return nil
}

func (r *automationRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error) {
	var out []models.Automation
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list automations failed")
	}
	return out, nil
}

func (r *automationRepository) ListEnabledByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Automation, error) {
	var out []models.Automation
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND enabled = ?", workspaceID, true).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list enabled automations failed")
	}
	return out, nil
}

func (r *automationRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Automation{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "toggle automation failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "automation not found")
	}
	return nil
}

func (r *automationRepository) TouchLastFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Automation{}).
		Where("id = ?", id).
		Update("last_fired_at", at)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update last fired failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "automation not found")
	}
	return nil
}
