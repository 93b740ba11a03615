package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// ActivityRepository persists the append-only activity log. There is no
// Update: entries are immutable once written. DeleteByID exists solely for
// the undo of the most recent agent-authored entry.
type ActivityRepository interface {
	Create(ctx context.Context, a *models.Activity) error
	ListByDeal(ctx context.Context, dealID uuid.UUID, limit int) ([]models.Activity, error)
	ListByContact(ctx context.Context, contactID uuid.UUID, limit int) ([]models.Activity, error)

	// LatestByDeal returns the most recent entry for a deal, or not found.
	LatestByDeal(ctx context.Context, dealID uuid.UUID, dest *models.Activity) error

	// LatestAgentByDeal returns the most recent agent-authored (no user id)
	// entry for a deal, for undo.
	LatestAgentByDeal(ctx context.Context, dealID uuid.UUID, dest *models.Activity) error
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// LatestPerDeal returns a map of deal id to most recent activity
	// timestamp for all listed deals, for the health read model.
	LatestPerDeal(ctx context.Context, dealIDs []uuid.UUID) (map[uuid.UUID]models.Activity, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, a *models.Activity) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create activity failed")
	}
	return nil
}

func (r *activityRepository) ListByDeal(ctx context.Context, dealID uuid.UUID, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Activity
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list activities failed")
	}
	return out, nil
}

func (r *activityRepository) ListByContact(ctx context.Context, contactID uuid.UUID, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Activity
	err := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list activities failed")
	}
	return out, nil
}

func (r *activityRepository) LatestByDeal(ctx context.Context, dealID uuid.UUID, dest *models.Activity) error {
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at DESC").
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no activity for deal")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest activity failed")
	}
	return nil
}

func (r *activityRepository) LatestAgentByDeal(ctx context.Context, dealID uuid.UUID, dest *models.Activity) error {
	err := r.db.WithContext(ctx).
		Where("deal_id = ? AND user_id IS NULL", dealID).
		Order("created_at DESC").
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no agent activity for deal")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest agent activity failed")
	}
	return nil
}

func (r *activityRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Activity{}, "id = ?", id)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "delete activity failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "activity not found")
	}
	return nil
}

func (r *activityRepository) LatestPerDeal(ctx context.Context, dealIDs []uuid.UUID) (map[uuid.UUID]models.Activity, error) {
	out := make(map[uuid.UUID]models.Activity, len(dealIDs))
	if len(dealIDs) == 0 {
		return out, nil
	}
	var rows []models.Activity
	err := r.db.WithContext(ctx).
		Where("deal_id IN ?", dealIDs).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list latest activities failed")
	}
	for _, a := range rows {
		if a.DealID == nil {
			continue
		}
		if _, seen := out[*a.DealID]; !seen {
			out[*a.DealID] = a
		}
	}
	return out, nil
}
