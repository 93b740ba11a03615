package pipeline

import (
	"strings"

	"github.com/fieldline/engine/internal/models"
)

// Spoken aliases for each column, checked after the canonical key and label.
// Chat input like "move it to awaiting payment" or "mark as done" should
// land on the right column.
var stageAliases = map[string][]string{
	"new_request":      {"new", "new job", "new request", "lead"},
	"quote_sent":       {"quoted", "quote", "contacted"},
	"negotiation":      {"negotiating", "in negotiation"},
	"scheduled":        {"booked", "booked in", "schedule"},
	"pipeline":         {"in progress", "working"},
	"ready_to_invoice": {"invoiced", "awaiting payment", "invoice"},
	"pending_approval": {"pending", "awaiting approval"},
	"completed":        {"done", "won", "complete", "finished"},
	"lost":             {"dead", "cancelled"},
	"deleted":          {"trash", "removed"},
}

const aliasFuzzyCutoff = 0.5

// ResolveStageAlias maps free-form stage text to an internal stage. The
// tie-breaking order is fixed: exact match, then candidate-contains-input,
// then input-contains-candidate, then fuzzy score with a 0.5 cutoff.
// Changing this order changes which column ambiguous chat input lands on.
func ResolveStageAlias(input string) (models.DealStage, bool) {
	q := strings.ToLower(strings.TrimSpace(input))
	if q == "" {
		return "", false
	}

	type candidate struct {
		text  string
		stage models.DealStage
	}
	var cands []candidate
	for _, c := range columns {
		cands = append(cands, candidate{c.key, c.stage})
		cands = append(cands, candidate{strings.ToLower(c.label), c.stage})
		for _, a := range stageAliases[c.key] {
			cands = append(cands, candidate{a, c.stage})
		}
	}

	for _, c := range cands {
		if c.text == q {
			return c.stage, true
		}
	}
	for _, c := range cands {
		if strings.Contains(c.text, q) {
			return c.stage, true
		}
	}
	for _, c := range cands {
		if strings.Contains(q, c.text) {
			return c.stage, true
		}
	}

	bestScore := 0.0
	var best models.DealStage
	for _, c := range cands {
		if s := fuzzyScore(q, c.text); s > bestScore {
			bestScore = s
			best = c.stage
		}
	}
	if bestScore >= aliasFuzzyCutoff {
		return best, true
	}
	return "", false
}

// fuzzyScore rates how well query matches target on a 0..1 scale using
// normalized Levenshtein distance.
func fuzzyScore(query, target string) float64 {
	if query == target {
		return 1
	}
	maxLen := len(query)
	if len(target) > maxLen {
		maxLen = len(target)
	}
	if maxLen == 0 {
		return 1
	}
	d := levenshtein(query, target)
	score := 1 - float64(d)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
