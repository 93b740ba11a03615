package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/repository"
	"github.com/fieldline/engine/internal/services"
	"github.com/fieldline/engine/pkg/logger"
)

// Task type names registered on the asynq mux.
const (
	TypeScanStale       = "deal:scan_stale"
	TypePurgeDeleted    = "deal:purge_deleted"
	TypeCheckStaleRules = "automation:check_stale"
	TypeCheckTaskRules  = "automation:check_tasks"
)

// MaintenancePayload is the shared payload for scheduled maintenance tasks.
// WorkspaceID is optional; empty means every workspace.
type MaintenancePayload struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// MaintenanceTaskHandler runs the periodic jobs: flagging stale scheduled
// work, purging expired deleted deals, and the time-based automation sweeps.
type MaintenanceTaskHandler struct {
	staleSvc      services.StaleJobService
	dealSvc       services.DealService
	automationSvc services.AutomationService
	workspaceRepo repository.WorkspaceRepository
}

func NewMaintenanceTaskHandler(
	staleSvc services.StaleJobService,
	dealSvc services.DealService,
	automationSvc services.AutomationService,
	workspaceRepo repository.WorkspaceRepository,
) *MaintenanceTaskHandler {
	return &MaintenanceTaskHandler{
		staleSvc:      staleSvc,
		dealSvc:       dealSvc,
		automationSvc: automationSvc,
		workspaceRepo: workspaceRepo,
	}
}

func parsePayload(t *asynq.Task) (*uuid.UUID, error) {
	var p MaintenancePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return nil, err
		}
	}
	if p.WorkspaceID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *MaintenanceTaskHandler) HandleScanStale(ctx context.Context, t *asynq.Task) error {
	workspaceID, err := parsePayload(t)
	if err != nil {
		logger.L().Error("invalid scan_stale payload", zap.Error(err))
		return err
	}

	res, err := h.staleSvc.ScanAndFlagStale(ctx, workspaceID)
	if err != nil {
		logger.L().Error("stale scan failed", zap.Error(err))
		return err
	}
	logger.L().Info("stale scan complete",
		zap.Int("overdue", res.Overdue),
		zap.Int64("flagged", res.Updated),
	)
	return nil
}

func (h *MaintenanceTaskHandler) HandlePurgeDeleted(ctx context.Context, t *asynq.Task) error {
	purged, err := h.dealSvc.PurgeExpiredDeleted(ctx)
	if err != nil {
		logger.L().Error("purge deleted failed", zap.Error(err))
		return err
	}
	logger.L().Info("purge complete", zap.Int64("purged", purged))
	return nil
}

func (h *MaintenanceTaskHandler) HandleCheckStaleRules(ctx context.Context, t *asynq.Task) error {
	return h.forEachWorkspace(ctx, t, "deal_stale sweep", h.automationSvc.CheckStaleDeals)
}

func (h *MaintenanceTaskHandler) HandleCheckTaskRules(ctx context.Context, t *asynq.Task) error {
	return h.forEachWorkspace(ctx, t, "task_overdue sweep", h.automationSvc.CheckOverdueTasks)
}

// forEachWorkspace runs a per-workspace sweep for one or all workspaces. A
// workspace whose sweep fails is logged and skipped; the run itself only
// fails on payload or workspace-listing errors so asynq does not retry a
// sweep that already partially ran.
func (h *MaintenanceTaskHandler) forEachWorkspace(
	ctx context.Context,
	t *asynq.Task,
	name string,
	sweep func(context.Context, uuid.UUID) (*services.EvalResult, error),
) error {
	workspaceID, err := parsePayload(t)
	if err != nil {
		logger.L().Error("invalid payload", zap.String("sweep", name), zap.Error(err))
		return err
	}

	var ids []uuid.UUID
	if workspaceID != nil {
		ids = []uuid.UUID{*workspaceID}
	} else {
		workspaces, err := h.workspaceRepo.ListAll(ctx)
		if err != nil {
			logger.L().Error("list workspaces failed", zap.String("sweep", name), zap.Error(err))
			return err
		}
		for _, ws := range workspaces {
			ids = append(ids, ws.ID)
		}
	}

	fired := 0
	for _, id := range ids {
		res, err := sweep(ctx, id)
		if err != nil {
			logger.L().Warn("workspace sweep failed",
				zap.String("sweep", name),
				zap.String("workspace_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		fired += res.Fired
		for _, line := range res.Errors {
			logger.L().Warn("rule error during sweep", zap.String("sweep", name), zap.String("detail", line))
		}
	}
	logger.L().Info("sweep complete",
		zap.String("sweep", name),
		zap.Int("workspaces", len(ids)),
		zap.Int("fired", fired),
	)
	return nil
}
