package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// UserRepository is the user/role directory used for assignee validation and
// role resolution.
type UserRepository interface {
	BaseRepository[models.User]
	GetByEmail(ctx context.Context, email string, dest *models.User) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error)
	GetWorkspaceOwner(ctx context.Context, workspaceID uuid.UUID, dest *models.User) error
}

type userRepository struct {
	BaseRepository[models.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository[models.User](db), db: db}
}

func (r *userRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "user not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get user by email failed")
	}
	return nil
}

func (r *userRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error) {
	var out []models.User
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list users failed")
	}
	return out, nil
}

func (r *userRepository) GetWorkspaceOwner(ctx context.Context, workspaceID uuid.UUID, dest *models.User) error {
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND role = ?", workspaceID, models.RoleOwner).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "workspace owner not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get workspace owner failed")
	}
	return nil
}
