package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// DeviationRepository persists AI-vs-human deviation events and the
// business-rule store that resolutions cascade into.
type DeviationRepository interface {
	BaseRepository[models.DeviationEvent]
	ListUnresolved(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.DeviationEvent, error)
	Resolve(ctx context.Context, id uuid.UUID, action models.ResolvedAction) error
	DeleteMatchingRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory, contains string) (int64, error)
	CreateRule(ctx context.Context, rule *models.BusinessRule) error
	ListRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory) ([]models.BusinessRule, error)
}

type deviationRepository struct {
	BaseRepository[models.DeviationEvent]
	db *gorm.DB
}

func NewDeviationRepository(db *gorm.DB) DeviationRepository {
	return &deviationRepository{BaseRepository: NewBaseRepository[models.DeviationEvent](db), db: db}
}

func (r *deviationRepository) ListUnresolved(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.DeviationEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.DeviationEvent
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND resolved = ?", workspaceID, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list deviations failed")
	}
	return out, nil
}

func (r *deviationRepository) Resolve(ctx context.Context, id uuid.UUID, action models.ResolvedAction) error {
	// Only unresolved rows match, so a second resolve comes back not found.
	res := r.db.WithContext(ctx).
		Model(&models.DeviationEvent{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{"resolved": true, "resolved_action": action})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "resolve deviation failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "deviation already resolved or missing")
	}
	return nil
}

func (r *deviationRepository) DeleteMatchingRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory, contains string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("workspace_id = ? AND category = ? AND rule_content LIKE ?", workspaceID, category, "%"+contains+"%").
		Delete(&models.BusinessRule{})
	if res.Error != nil {
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, "delete business rules failed")
	}
	return res.RowsAffected, nil
}

func (r *deviationRepository) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create business rule failed")
	}
	return nil
}

func (r *deviationRepository) ListRules(ctx context.Context, workspaceID uuid.UUID, category models.BusinessRuleCategory) ([]models.BusinessRule, error) {
	var out []models.BusinessRule
	q := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list business rules failed")
	}
	return out, nil
}
