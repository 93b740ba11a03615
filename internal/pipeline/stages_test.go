package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldline/engine/internal/models"
)

func TestStageKeyRoundTrip(t *testing.T) {
	for _, key := range ColumnKeys() {
		stage, ok := StageForKey(key)
		require.True(t, ok, "key %s should resolve", key)
		back, ok := KeyForStage(stage)
		require.True(t, ok)
		require.Equal(t, key, back)
	}
}

func TestStageForKeyUnknown(t *testing.T) {
	_, ok := StageForKey("warehouse")
	require.False(t, ok)
}

func TestLabels(t *testing.T) {
	require.Equal(t, "Awaiting payment", Label(models.StageInvoiced))
	require.Equal(t, "Pending approval", Label(models.StagePendingCompletion))
	require.Equal(t, "Deleted jobs", Label(models.StageDeleted))
	// Unknown stages fall back to the raw value.
	require.Equal(t, "BOGUS", Label(models.DealStage("BOGUS")))
}

func TestOutcomeStage(t *testing.T) {
	cases := []struct {
		outcome       models.ActualOutcome
		stage         models.DealStage
		clearSchedule bool
	}{
		{models.OutcomeCompleted, models.StageWon, false},
		{models.OutcomeCancelled, models.StageLost, false},
		{models.OutcomeNoShow, models.StageLost, false},
		{models.OutcomeRescheduled, models.StageContacted, true},
	}
	for _, c := range cases {
		stage, clear, ok := OutcomeStage(c.outcome)
		require.True(t, ok, "outcome %s", c.outcome)
		require.Equal(t, c.stage, stage)
		require.Equal(t, c.clearSchedule, clear)
	}

	_, _, ok := OutcomeStage(models.ActualOutcome("GHOSTED"))
	require.False(t, ok)
}

func TestColumnKeysOrder(t *testing.T) {
	keys := ColumnKeys()
	require.Equal(t, "new_request", keys[0])
	require.Equal(t, "deleted", keys[len(keys)-1])
	require.Len(t, keys, 10)
}
