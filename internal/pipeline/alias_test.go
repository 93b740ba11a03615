package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldline/engine/internal/models"
)

func TestResolveStageAliasExact(t *testing.T) {
	cases := map[string]models.DealStage{
		"new_request":      models.StageNew,
		"quote sent":       models.StageContacted,
		"awaiting payment": models.StageInvoiced,
		"done":             models.StageWon,
		"booked":           models.StageScheduled,
		"trash":            models.StageDeleted,
	}
	for input, want := range cases {
		got, ok := ResolveStageAlias(input)
		require.True(t, ok, "input %q", input)
		require.Equal(t, want, got, "input %q", input)
	}
}

func TestResolveStageAliasCaseAndWhitespace(t *testing.T) {
	got, ok := ResolveStageAlias("  Awaiting Payment ")
	require.True(t, ok)
	require.Equal(t, models.StageInvoiced, got)
}

func TestResolveStageAliasSubstring(t *testing.T) {
	// Partial input matches a candidate that contains it.
	got, ok := ResolveStageAlias("negotiat")
	require.True(t, ok)
	require.Equal(t, models.StageNegotiation, got)

	// Input containing a candidate also matches.
	got, ok = ResolveStageAlias("mark it as done please")
	require.True(t, ok)
	require.Equal(t, models.StageWon, got)
}

func TestResolveStageAliasFuzzy(t *testing.T) {
	// One-letter typo still lands within the fuzzy cutoff.
	got, ok := ResolveStageAlias("scheduld")
	require.True(t, ok)
	require.Equal(t, models.StageScheduled, got)
}

func TestResolveStageAliasMiss(t *testing.T) {
	_, ok := ResolveStageAlias("xk9q")
	require.False(t, ok)

	_, ok = ResolveStageAlias("")
	require.False(t, ok)
}

func TestLevenshtein(t *testing.T) {
	require.Equal(t, 0, levenshtein("won", "won"))
	require.Equal(t, 1, levenshtein("won", "wan"))
	require.Equal(t, 3, levenshtein("", "won"))
	require.Equal(t, 3, levenshtein("kitten", "sitting"))
}
