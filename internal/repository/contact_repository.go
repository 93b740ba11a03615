package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// ContactRepository is the contact directory.
type ContactRepository interface {
	BaseRepository[models.Contact]
	GetInWorkspace(ctx context.Context, contactID, workspaceID uuid.UUID, dest *models.Contact) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Contact, error)
}

type contactRepository struct {
	BaseRepository[models.Contact]
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{BaseRepository: NewBaseRepository[models.Contact](db), db: db}
}

func (r *contactRepository) GetInWorkspace(ctx context.Context, contactID, workspaceID uuid.UUID, dest *models.Contact) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", contactID, workspaceID).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "contact not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get contact failed")
	}
	return nil
}

func (r *contactRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Contact, error) {
	var out []models.Contact
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list contacts failed")
	}
	return out, nil
}
