package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

func TestCreateDealDefaultsAndActivity(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	d := e.createDeal(t, f, "Fence repair", nil)
	require.Equal(t, models.StageNew, d.Stage)
	require.False(t, d.IsStale)

	acts := e.dealActivities(t, d.ID)
	require.Len(t, acts, 1)
	require.Equal(t, "Deal created", acts[0].Title)
	require.Equal(t, &f.owner.ID, acts[0].UserID)
}

func TestCreateDealValidation(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	_, err := e.deals.CreateDeal(ctxb(), &CreateDealInput{WorkspaceID: f.ws.ID, ContactID: f.contact.ID, Value: 100})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = e.deals.CreateDeal(ctxb(), &CreateDealInput{WorkspaceID: f.ws.ID, ContactID: f.contact.ID, Title: "x", Value: -1})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	// Scheduled on creation requires an assignee too.
	_, err = e.deals.CreateDeal(ctxb(), &CreateDealInput{
		WorkspaceID: f.ws.ID, ContactID: f.contact.ID, Title: "x", StageKey: "scheduled",
	})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestTransitionStageMovesAndLogs(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Gutter clean", nil)

	err := e.deals.TransitionStage(ctxb(), d.ID, "quote_sent", UserActor(f.owner.ID, f.owner.Name))
	require.NoError(t, err)

	got := e.reloadDeal(t, d.ID)
	require.Equal(t, models.StageContacted, got.Stage)
	require.Equal(t, string(models.StageNew), got.Metadata[models.MetaPreviousStage])
	require.NotNil(t, got.StageChangedAt)

	acts := e.dealActivities(t, d.ID)
	require.Equal(t, "Moved to Quote sent", acts[0].Title)
	require.Contains(t, acts[0].Content, f.owner.Name)
}

func TestTransitionStageInvalidKey(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Job", nil)

	err := e.deals.TransitionStage(ctxb(), d.ID, "warehouse", UserActor(f.owner.ID, ""))
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestTransitionToScheduledRequiresAssignee(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Job", nil)

	err := e.deals.TransitionStage(ctxb(), d.ID, "scheduled", UserActor(f.owner.ID, ""))
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	require.Equal(t, models.StageNew, e.reloadDeal(t, d.ID).Stage)

	// Assigning first unblocks the move.
	got := e.reloadDeal(t, d.ID)
	got.AssigneeID = &f.member.ID
	require.NoError(t, e.dealRepo.Update(ctxb(), &got))

	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "scheduled", UserActor(f.owner.ID, "")))
	require.Equal(t, models.StageScheduled, e.reloadDeal(t, d.ID).Stage)
}

func TestTeamMemberCompletionGoesToPendingApproval(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)

	err := e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.member.ID, f.member.Name))
	require.NoError(t, err)

	got := e.reloadDeal(t, d.ID)
	require.Equal(t, models.StagePendingCompletion, got.Stage)
	require.Equal(t, string(models.StageNew), got.Metadata[models.MetaPreviousStage])
	require.Equal(t, f.member.ID.String(), got.Metadata[models.MetaCompletionRequestedBy])
	require.NotEmpty(t, got.Metadata[models.MetaCompletionRequestedAt])

	acts := e.dealActivities(t, d.ID)
	require.Equal(t, "Moved to Pending approval", acts[0].Title)
}

func TestManagerCompletionGoesStraightToWon(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)

	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.manager.ID, f.manager.Name)))
	require.Equal(t, models.StageWon, e.reloadDeal(t, d.ID).Stage)
}

func TestPendingCompletionBlocksGenericTransitions(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.member.ID, f.member.Name)))

	for _, key := range []string{"new_request", "completed", "lost", "deleted"} {
		err := e.deals.TransitionStage(ctxb(), d.ID, key, UserActor(f.manager.ID, f.manager.Name))
		require.True(t, appErr.IsCode(err, appErr.CodeConflict), "key %s", key)
	}
	require.Equal(t, models.StagePendingCompletion, e.reloadDeal(t, d.ID).Stage)
}

func TestApproveCompletion(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.member.ID, f.member.Name)))

	require.NoError(t, e.deals.ApproveCompletion(ctxb(), d.ID, UserActor(f.manager.ID, f.manager.Name)))

	got := e.reloadDeal(t, d.ID)
	require.Equal(t, models.StageWon, got.Stage)
	require.NotContains(t, got.Metadata, models.MetaPreviousStage)
	require.NotContains(t, got.Metadata, models.MetaCompletionRequestedBy)
	require.NotContains(t, got.Metadata, models.MetaCompletionRequestedAt)

	titles := map[string]bool{}
	for _, a := range e.dealActivities(t, d.ID) {
		titles[a.Title] = true
	}
	require.True(t, titles["Completion approved"])
	// Winning the deal also kicks the pricing learner.
	require.True(t, titles["Pricing suggestion created"])

	// The requesting member hears about it.
	notes := e.notificationsFor(t, f.member.ID)
	require.NotEmpty(t, notes)
	require.Equal(t, "Completion approved", notes[0].Title)

	// Approving twice is a conflict: the deal is no longer pending.
	err := e.deals.ApproveCompletion(ctxb(), d.ID, UserActor(f.manager.ID, f.manager.Name))
	require.True(t, appErr.IsCode(err, appErr.CodeConflict))
}

func TestApproveCompletionRoleAndWorkspaceChecks(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	d := e.createDeal(t, f, "Deck build", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.member.ID, f.member.Name)))

	// Team members cannot approve, not even their own request.
	err := e.deals.ApproveCompletion(ctxb(), d.ID, UserActor(f.member.ID, f.member.Name))
	require.True(t, appErr.IsCode(err, appErr.CodeUnauthorized))

	// A manager from another workspace is walled off.
	err = e.deals.ApproveCompletion(ctxb(), d.ID, UserActor(other.manager.ID, other.manager.Name))
	require.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	require.Equal(t, models.StagePendingCompletion, e.reloadDeal(t, d.ID).Stage)
}

func TestRejectCompletionRestoresPreviousStage(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "completed", UserActor(f.member.ID, f.member.Name)))

	require.NoError(t, e.deals.RejectCompletion(ctxb(), d.ID, UserActor(f.manager.ID, f.manager.Name), "photos missing"))

	got := e.reloadDeal(t, d.ID)
	require.Equal(t, models.StageNew, got.Stage)
	require.Equal(t, f.manager.ID.String(), got.Metadata[models.MetaCompletionRejectedBy])
	require.Equal(t, "photos missing", got.Metadata[models.MetaRejectionReason])
	require.NotContains(t, got.Metadata, models.MetaCompletionRequestedBy)

	acts := e.dealActivities(t, d.ID)
	require.Equal(t, "Completion rejected", acts[0].Title)
	require.Contains(t, acts[0].Content, "photos missing")

	notes := e.notificationsFor(t, f.member.ID)
	require.NotEmpty(t, notes)
	require.Equal(t, "Completion rejected", notes[0].Title)
}

func TestRejectCompletionDefaultsToInvoiced(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", nil)

	// A pending deal with no recorded previous stage, as older rows may be.
	got := e.reloadDeal(t, d.ID)
	got.Stage = models.StagePendingCompletion
	require.NoError(t, e.dealRepo.Update(ctxb(), &got))

	require.NoError(t, e.deals.RejectCompletion(ctxb(), d.ID, UserActor(f.owner.ID, f.owner.Name), ""))
	require.Equal(t, models.StageInvoiced, e.reloadDeal(t, d.ID).Stage)
}

func TestTransitionCrossWorkspaceLooksLikeMissing(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	d := e.createDeal(t, f, "Deck build", nil)

	err := e.deals.TransitionStage(ctxb(), d.ID, "quote_sent", UserActor(other.owner.ID, other.owner.Name))
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	require.Equal(t, models.StageNew, e.reloadDeal(t, d.ID).Stage)
}

func TestUpdateDealMetadata(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Deck build", func(in *CreateDealInput) {
		in.Metadata = map[string]any{"source": "referral"}
	})

	updated, err := e.deals.UpdateDealMetadata(ctxb(), d.ID, f.ws.ID,
		map[string]any{models.MetaNotes: "gate code 4471"}, UserActor(f.owner.ID, f.owner.Name))
	require.NoError(t, err)
	// Shallow merge keeps untouched keys.
	require.Equal(t, "referral", updated.Metadata["source"])
	require.Equal(t, "gate code 4471", updated.Metadata[models.MetaNotes])

	acts := e.dealActivities(t, d.ID)
	require.Equal(t, "Notes updated", acts[0].Title)

	_, err = e.deals.UpdateDealMetadata(ctxb(), d.ID, f.ws.ID,
		map[string]any{"source": "site visit"}, UserActor(f.owner.ID, f.owner.Name))
	require.NoError(t, err)
	acts = e.dealActivities(t, d.ID)
	require.Equal(t, "Details updated", acts[0].Title)

	// Cross-workspace update reads as missing.
	other := e.seedWorkspace(t, "other")
	_, err = e.deals.UpdateDealMetadata(ctxb(), d.ID, other.ws.ID,
		map[string]any{"x": "y"}, UserActor(other.owner.ID, ""))
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestDeleteDealSoftThenPurge(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Old job", nil)

	require.NoError(t, e.deals.DeleteDeal(ctxb(), d.ID, UserActor(f.owner.ID, f.owner.Name)))
	require.Equal(t, models.StageDeleted, e.reloadDeal(t, d.ID).Stage)

	// Deleted deals fall out of the board listing.
	views, err := e.deals.ListDealsWithHealth(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Empty(t, views)

	// Inside the retention window the row survives the purge.
	n, err := e.deals.PurgeExpiredDeleted(ctxb())
	require.NoError(t, err)
	require.Zero(t, n)

	// Once the grace period lapses it is gone for good.
	svc := e.deals.(*dealService)
	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	n, err = e.deals.PurgeExpiredDeleted(ctxb())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var count int64
	require.NoError(t, e.db.Model(&models.Deal{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestListDealsWithHealth(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createDeal(t, f, "Fresh", nil)
	stale := e.createDeal(t, f, "Stale", nil)
	rotting := e.createDeal(t, f, "Rotting", nil)

	// Age the deals by backdating their only activity.
	for _, row := range []struct {
		deal    *models.Deal
		daysAgo int
	}{{stale, 8}, {rotting, 20}} {
		require.NoError(t, e.db.Model(&models.Activity{}).
			Where("deal_id = ?", row.deal.ID).
			Update("created_at", time.Now().AddDate(0, 0, -row.daysAgo)).Error)
	}

	views, err := e.deals.ListDealsWithHealth(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)

	byTitle := map[string]DealView{}
	for _, v := range views {
		byTitle[v.Deal.Title] = v
	}
	require.Equal(t, "HEALTHY", string(byTitle["Fresh"].Health.Status))
	require.Equal(t, "STALE", string(byTitle["Stale"].Health.Status))
	require.Equal(t, "ROTTING", string(byTitle["Rotting"].Health.Status))
	require.Equal(t, "new_request", byTitle["Fresh"].StageKey)
}

func TestListDealsWorkspaceIsolation(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	e.createDeal(t, f, "Mine", nil)
	e.createDeal(t, other, "Theirs", nil)

	views, err := e.deals.ListDealsWithHealth(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "Mine", views[0].Deal.Title)
}
