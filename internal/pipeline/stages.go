// Package pipeline holds the pure domain logic of the deal pipeline: the
// stage vocabulary, the kanban column-key mapping, health computation, and
// stage alias resolution for natural-language input. Nothing in this package
// touches storage or the clock directly.
package pipeline

import (
	"github.com/fieldline/engine/internal/models"
)

// columnEntry ties a kanban column id to its internal stage and the label
// used for activity log lines.
type columnEntry struct {
	key   string
	stage models.DealStage
	label string
}

// Column order matches the board left to right.
var columns = []columnEntry{
	{"new_request", models.StageNew, "New request"},
	{"quote_sent", models.StageContacted, "Quote sent"},
	{"negotiation", models.StageNegotiation, "Negotiation"},
	{"scheduled", models.StageScheduled, "Scheduled"},
	{"pipeline", models.StagePipeline, "Pipeline"},
	{"ready_to_invoice", models.StageInvoiced, "Awaiting payment"},
	{"pending_approval", models.StagePendingCompletion, "Pending approval"},
	{"completed", models.StageWon, "Completed"},
	{"lost", models.StageLost, "Lost"},
	{"deleted", models.StageDeleted, "Deleted jobs"},
}

var (
	keyToStage   = map[string]models.DealStage{}
	stageToKey   = map[models.DealStage]string{}
	stageToLabel = map[models.DealStage]string{}
)

func init() {
	for _, c := range columns {
		keyToStage[c.key] = c.stage
		stageToKey[c.stage] = c.key
		stageToLabel[c.stage] = c.label
	}
}

// StageForKey maps an external column id (e.g. "ready_to_invoice") to the
// internal stage enum.
func StageForKey(key string) (models.DealStage, bool) {
	s, ok := keyToStage[key]
	return s, ok
}

// KeyForStage maps an internal stage back to its external column id.
func KeyForStage(stage models.DealStage) (string, bool) {
	k, ok := stageToKey[stage]
	return k, ok
}

// Label returns the human-readable column title for a stage. Falls back to
// the raw stage value for anything outside the board.
func Label(stage models.DealStage) string {
	if l, ok := stageToLabel[stage]; ok {
		return l
	}
	return string(stage)
}

// ColumnKeys returns the external column ids in board order.
func ColumnKeys() []string {
	keys := make([]string, len(columns))
	for i, c := range columns {
		keys[i] = c.key
	}
	return keys
}

// OutcomeStage returns the stage a reconciled deal lands in for the given
// outcome, and whether the scheduled time should be cleared.
func OutcomeStage(outcome models.ActualOutcome) (stage models.DealStage, clearSchedule bool, ok bool) {
	switch outcome {
	case models.OutcomeCompleted:
		return models.StageWon, false, true
	case models.OutcomeCancelled, models.OutcomeNoShow:
		return models.StageLost, false, true
	case models.OutcomeRescheduled:
		return models.StageContacted, true, true
	}
	return "", false, false
}
