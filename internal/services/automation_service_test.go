package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/fieldline/engine/internal/models"
	appErr "github.com/fieldline/engine/pkg/errors"
)

func (e *env) createRule(t *testing.T, f fixture, name string, trigger models.TriggerConfig, action models.ActionConfig) *models.Automation {
	t.Helper()
	a, err := e.automations.CreateAutomation(ctxb(), &CreateAutomationInput{
		WorkspaceID: f.ws.ID,
		Name:        name,
		Trigger:     trigger,
		Action:      action,
	})
	require.NoError(t, err)
	return a
}

func TestCreateAutomationValidation(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	cases := []struct {
		name  string
		input CreateAutomationInput
	}{
		{"missing name", CreateAutomationInput{
			WorkspaceID: f.ws.ID,
			Trigger:     models.TriggerConfig{Event: models.TriggerNewLead},
			Action:      models.ActionConfig{Type: models.ActionNotify},
		}},
		{"unknown trigger event", CreateAutomationInput{
			WorkspaceID: f.ws.ID, Name: "r",
			Trigger: models.TriggerConfig{Event: "deal_sneezed"},
			Action:  models.ActionConfig{Type: models.ActionNotify},
		}},
		{"unknown action type", CreateAutomationInput{
			WorkspaceID: f.ws.ID, Name: "r",
			Trigger: models.TriggerConfig{Event: models.TriggerNewLead},
			Action:  models.ActionConfig{Type: "launch_rocket"},
		}},
		{"bad trigger stage", CreateAutomationInput{
			WorkspaceID: f.ws.ID, Name: "r",
			Trigger: models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: "LIMBO"},
			Action:  models.ActionConfig{Type: models.ActionNotify},
		}},
		{"move_stage without target", CreateAutomationInput{
			WorkspaceID: f.ws.ID, Name: "r",
			Trigger: models.TriggerConfig{Event: models.TriggerNewLead},
			Action:  models.ActionConfig{Type: models.ActionMoveStage},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.input
			_, err := e.automations.CreateAutomation(ctxb(), &input)
			require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		})
	}
}

func TestSeedPresetsIdempotent(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	first, err := e.automations.SeedPresets(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := e.automations.SeedPresets(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, second, 3)

	all, err := e.automations.ListAutomations(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestEvaluateStageChangeNotifiesOwner(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	rule := e.createRule(t, f, "Quote nudge",
		models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: models.StageContacted},
		models.ActionConfig{Type: models.ActionNotify, Message: "Chase the quote"})
	d := e.createDeal(t, f, "Roof patch", nil)

	res, err := e.automations.Evaluate(ctxb(), f.ws.ID, Event{
		Type: EventStageChange, DealID: &d.ID, Stage: models.StageContacted,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)
	require.Equal(t, 1, res.Fired)
	require.Len(t, res.Results, 1)
	require.Contains(t, res.Results[0], "[Quote nudge]")
	require.Empty(t, res.Errors)

	notes := e.notificationsFor(t, f.owner.ID)
	require.NotEmpty(t, notes)
	require.Equal(t, "Quote nudge", notes[0].Title)
	require.Equal(t, "Chase the quote", notes[0].Message)
	require.Equal(t, "/deals/"+d.ID.String(), notes[0].Link)

	var got models.Automation
	require.NoError(t, e.automationRepo.GetByID(ctxb(), rule.ID, &got))
	require.NotNil(t, got.LastFiredAt)
}

func TestEvaluateStageChangeExactMatch(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Scheduled only",
		models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: models.StageScheduled},
		models.ActionConfig{Type: models.ActionNotify})
	e.createRule(t, f, "No stage set",
		models.TriggerConfig{Event: models.TriggerDealStageChange},
		models.ActionConfig{Type: models.ActionNotify})

	// A rule with no stage configured never fires, on any move.
	res, err := e.automations.Evaluate(ctxb(), f.ws.ID, Event{Type: EventStageChange, Stage: models.StageContacted})
	require.NoError(t, err)
	require.Equal(t, 0, res.Matched)

	res, err = e.automations.Evaluate(ctxb(), f.ws.ID, Event{Type: EventStageChange, Stage: models.StageScheduled})
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)
	require.Contains(t, res.Results[0], "[Scheduled only]")
}

func TestEvaluateIsolatesBrokenRules(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Good rule",
		models.TriggerConfig{Event: models.TriggerNewLead},
		models.ActionConfig{Type: models.ActionNotify, Message: "hello"})

	// A row with a mangled trigger blob, as a bad migration might leave.
	broken := models.Automation{
		WorkspaceID: f.ws.ID,
		Name:        "Broken rule",
		Enabled:     true,
		Trigger:     datatypes.JSON([]byte(`{"event":`)),
		Action:      datatypes.JSON([]byte(`{"type":"notify"}`)),
	}
	require.NoError(t, e.db.Create(&broken).Error)

	res, err := e.automations.Evaluate(ctxb(), f.ws.ID, Event{Type: EventNewLead})
	require.NoError(t, err)
	require.Equal(t, 1, res.Fired)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "[Broken rule]")
}

func TestNewLeadCreatesFollowUpTask(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "New lead follow-up",
		models.TriggerConfig{Event: models.TriggerNewLead},
		models.ActionConfig{Type: models.ActionCreateTask, Message: "Call them back"})

	d := e.createDeal(t, f, "Lawn care", nil)

	var tasks []models.Task
	require.NoError(t, e.db.Where("deal_id = ?", d.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	require.Equal(t, "Call them back", tasks[0].Title)
	require.Equal(t, f.contact.ID, *tasks[0].ContactID)
	require.NotNil(t, tasks[0].DueAt)
	require.WithinDuration(t, time.Now().Add(48*time.Hour), *tasks[0].DueAt, time.Minute)
}

func TestDraftDealSkipsNewLeadRules(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "New lead follow-up",
		models.TriggerConfig{Event: models.TriggerNewLead},
		models.ActionConfig{Type: models.ActionCreateTask})

	d := e.createDeal(t, f, "Draft idea", func(in *CreateDealInput) { in.IsDraft = true })

	var count int64
	require.NoError(t, e.db.Model(&models.Task{}).Where("deal_id = ?", d.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateTaskSkippedOnCoarseEvents(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Overdue sweep",
		models.TriggerConfig{Event: models.TriggerTaskOverdue},
		models.ActionConfig{Type: models.ActionCreateTask})

	res, err := e.automations.Evaluate(ctxb(), f.ws.ID, Event{Type: EventTaskOverdue, OverdueTasks: 3})
	require.NoError(t, err)
	require.Equal(t, 1, res.Fired)
	require.Contains(t, res.Results[0], "skipped create_task")

	var count int64
	require.NoError(t, e.db.Model(&models.Task{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestMoveStageCascadeIsBounded(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	// Two rules that chase each other. The depth cap has to break the loop.
	e.createRule(t, f, "Bounce forward",
		models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: models.StageContacted},
		models.ActionConfig{Type: models.ActionMoveStage, TargetStage: models.StagePipeline})
	e.createRule(t, f, "Bounce back",
		models.TriggerConfig{Event: models.TriggerDealStageChange, Stage: models.StagePipeline},
		models.ActionConfig{Type: models.ActionMoveStage, TargetStage: models.StageContacted})

	d := e.createDeal(t, f, "Ping pong", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), d.ID, "quote_sent", UserActor(f.owner.ID, f.owner.Name)))

	// The user's move plus three rule-driven bounces; the fourth evaluation
	// hits the depth cap and the loop dies.
	got := e.reloadDeal(t, d.ID)
	require.Equal(t, models.StagePipeline, got.Stage)

	acts := e.dealActivities(t, d.ID)
	moves := 0
	for _, a := range acts {
		if a.Title == "Moved to Quote sent" || a.Title == "Moved to Pipeline" {
			moves++
		}
	}
	require.Equal(t, 4, moves)
}

func TestCheckStaleDealsFiresOnThreshold(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Stale reminder",
		models.TriggerConfig{Event: models.TriggerDealStale, ThresholdDays: intPtr(7)},
		models.ActionConfig{Type: models.ActionNotify, Message: "Gone quiet"})

	quiet := e.createDeal(t, f, "Quiet", nil)
	e.createDeal(t, f, "Active", nil)
	won := e.createDeal(t, f, "Done", nil)
	require.NoError(t, e.deals.TransitionStage(ctxb(), won.ID, "completed", UserActor(f.owner.ID, f.owner.Name)))

	// Silence the quiet deal for ten days.
	require.NoError(t, e.db.Model(&models.Activity{}).
		Where("deal_id = ?", quiet.ID).
		Update("created_at", time.Now().AddDate(0, 0, -10)).Error)
	require.NoError(t, e.db.Model(&models.Deal{}).
		Where("id = ?", quiet.ID).
		Update("created_at", time.Now().AddDate(0, 0, -10)).Error)

	res, err := e.automations.CheckStaleDeals(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Fired)
	require.Contains(t, res.Results[0], "[Stale reminder]")

	notes := e.notificationsFor(t, f.owner.ID)
	found := false
	for _, n := range notes {
		if n.Title == "Stale reminder" && n.Link == "/deals/"+quiet.ID.String() {
			found = true
		}
	}
	require.True(t, found)
}

func TestCheckStaleDealsHonorsStageFilter(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Negotiation stall",
		models.TriggerConfig{Event: models.TriggerDealStale, ThresholdDays: intPtr(5), Stage: models.StageNegotiation},
		models.ActionConfig{Type: models.ActionNotify, Message: "Push the deal"})

	quiet := e.createDeal(t, f, "Quiet lead", nil)
	require.NoError(t, e.db.Model(&models.Activity{}).
		Where("deal_id = ?", quiet.ID).
		Update("created_at", time.Now().AddDate(0, 0, -10)).Error)
	require.NoError(t, e.db.Model(&models.Deal{}).
		Where("id = ?", quiet.ID).
		Update("created_at", time.Now().AddDate(0, 0, -10)).Error)

	// Quiet long enough, but sitting in NEW rather than the rule's stage.
	res, err := e.automations.CheckStaleDeals(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Equal(t, 0, res.Fired)

	require.NoError(t, e.db.Model(&models.Deal{}).
		Where("id = ?", quiet.ID).
		Update("stage", models.StageNegotiation).Error)

	res, err = e.automations.CheckStaleDeals(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Fired)
	require.Contains(t, res.Results[0], "[Negotiation stall]")
}

func TestCheckOverdueTasksFiresOncePerRun(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Overdue alert",
		models.TriggerConfig{Event: models.TriggerTaskOverdue},
		models.ActionConfig{Type: models.ActionNotify, Message: "Tasks slipping"})

	d := e.createDeal(t, f, "Job", nil)
	past := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 2; i++ {
		require.NoError(t, e.taskRepo.Create(ctxb(), &models.Task{Title: "t", DueAt: &past, DealID: &d.ID}))
	}

	res, err := e.automations.CheckOverdueTasks(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Fired)

	// Owner already had nothing; the sweep adds exactly one alert.
	count := 0
	for _, n := range e.notificationsFor(t, f.owner.ID) {
		if n.Title == "Overdue alert" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestCheckOverdueTasksNoopWhenClear(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	e.createRule(t, f, "Overdue alert",
		models.TriggerConfig{Event: models.TriggerTaskOverdue},
		models.ActionConfig{Type: models.ActionNotify})

	res, err := e.automations.CheckOverdueTasks(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Zero(t, res.Fired)
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	rule := e.createRule(t, f, "Muted",
		models.TriggerConfig{Event: models.TriggerNewLead},
		models.ActionConfig{Type: models.ActionNotify})
	require.NoError(t, e.automations.SetEnabled(ctxb(), rule.ID, f.ws.ID, false))

	res, err := e.automations.Evaluate(ctxb(), f.ws.ID, Event{Type: EventNewLead})
	require.NoError(t, err)
	require.Zero(t, res.Matched)
}

func TestAutomationWorkspaceScoping(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	rule := e.createRule(t, f, "Mine",
		models.TriggerConfig{Event: models.TriggerNewLead},
		models.ActionConfig{Type: models.ActionNotify})

	err := e.automations.SetEnabled(ctxb(), rule.ID, other.ws.ID, false)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	err = e.automations.DeleteAutomation(ctxb(), rule.ID, other.ws.ID)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	require.NoError(t, e.automations.DeleteAutomation(ctxb(), rule.ID, f.ws.ID))
	all, err := e.automations.ListAutomations(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Empty(t, all)
}

func intPtr(n int) *int { return &n }
