package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// WorkspaceRepository resolves tenants and their pipeline settings.
type WorkspaceRepository interface {
	BaseRepository[models.Workspace]
	ListAll(ctx context.Context) ([]models.Workspace, error)
	GetOwnedBy(ctx context.Context, workspaceID, ownerID uuid.UUID, dest *models.Workspace) error
}

type workspaceRepository struct {
	BaseRepository[models.Workspace]
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepository{BaseRepository: NewBaseRepository[models.Workspace](db), db: db}
}

func (r *workspaceRepository) ListAll(ctx context.Context) ([]models.Workspace, error) {
	var out []models.Workspace
	if err := r.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list workspaces failed")
	}
	return out, nil
}

func (r *workspaceRepository) GetOwnedBy(ctx context.Context, workspaceID, ownerID uuid.UUID, dest *models.Workspace) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", workspaceID, ownerID).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "workspace not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get workspace failed")
	}
	return nil
}
