package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

// DealRepository persists deals. Stage writes are last-write-wins: there is
// no optimistic-concurrency token on the deal row, so two overlapping
// transitions both succeed and the later write sticks. The activity log is
// the reliable audit trail in that case.
type DealRepository interface {
	BaseRepository[models.Deal]

	// GetInWorkspace loads a deal only if it belongs to the workspace.
	// Cross-workspace ids come back as not found.
	GetInWorkspace(ctx context.Context, dealID, workspaceID uuid.UUID, dest *models.Deal) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error)

	// ListOverdueScheduled returns deals eligible for the stale flag:
	// SCHEDULED, past their scheduled time, no outcome, not already stale.
	ListOverdueScheduled(ctx context.Context, workspaceID *uuid.UUID, now time.Time) ([]models.Deal, error)
	MarkStale(ctx context.Context, dealIDs []uuid.UUID) (int64, error)

	// ListStaleCandidates returns active deals in the workspace that the
	// deal_stale automation trigger should be checked against.
	ListStaleCandidates(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error)

	// PurgeDeletedBefore hard-deletes rows that have sat in the DELETED
	// stage since before the cutoff.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dealRepository struct {
	BaseRepository[models.Deal]
	db *gorm.DB
}

func NewDealRepository(db *gorm.DB) DealRepository {
	return &dealRepository{BaseRepository: NewBaseRepository[models.Deal](db), db: db}
}

func (r *dealRepository) GetInWorkspace(ctx context.Context, dealID, workspaceID uuid.UUID, dest *models.Deal) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", dealID, workspaceID).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "deal not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get deal failed")
	}
	return nil
}

func (r *dealRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error) {
	var out []models.Deal
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND stage <> ?", workspaceID, models.StageDeleted).
		Order("updated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list deals failed")
	}
	return out, nil
}

func (r *dealRepository) ListOverdueScheduled(ctx context.Context, workspaceID *uuid.UUID, now time.Time) ([]models.Deal, error) {
	q := r.db.WithContext(ctx).
		Where("stage = ?", models.StageScheduled).
		Where("scheduled_at IS NOT NULL AND scheduled_at < ?", now).
		Where("actual_outcome IS NULL").
		Where("is_stale = ?", false)
	if workspaceID != nil {
		q = q.Where("workspace_id = ?", *workspaceID)
	}
	var out []models.Deal
	if err := q.Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list overdue deals failed")
	}
	return out, nil
}

func (r *dealRepository) MarkStale(ctx context.Context, dealIDs []uuid.UUID) (int64, error) {
	if len(dealIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Deal{}).
		Where("id IN ?", dealIDs).
		Update("is_stale", true)
	if res.Error != nil {
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, "mark deals stale failed")
	}
	return res.RowsAffected, nil
}

func (r *dealRepository) ListStaleCandidates(ctx context.Context, workspaceID uuid.UUID) ([]models.Deal, error) {
	var out []models.Deal
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Where("stage NOT IN ?", []models.DealStage{models.StageWon, models.StageLost, models.StageDeleted}).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list stale candidates failed")
	}
	return out, nil
}

func (r *dealRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("stage = ? AND stage_changed_at IS NOT NULL AND stage_changed_at < ?", models.StageDeleted, cutoff).
		Delete(&models.Deal{})
	if res.Error != nil {
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, "purge deleted deals failed")
	}
	return res.RowsAffected, nil
}
