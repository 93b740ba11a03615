package pipeline

import "time"

// HealthStatus classifies a deal by time since its last activity.
type HealthStatus string

const (
	Healthy HealthStatus = "HEALTHY"
	Stale   HealthStatus = "STALE"
	Rotting HealthStatus = "ROTTING"
)

// Default thresholds, in whole days, used when a workspace has not
// configured its own.
const (
	DefaultDaysUntilStale   = 7
	DefaultDaysUntilRotting = 14
)

// HealthConfig carries workspace-configured staleness thresholds.
type HealthConfig struct {
	DaysUntilStale   int
	DaysUntilRotting int
}

// Health is the derived view of a deal's freshness. Never persisted.
type Health struct {
	Status            HealthStatus `json:"status"`
	DaysSinceActivity int          `json:"days_since_activity"`
}

// ComputeHealth classifies a deal from its last activity timestamp. The
// caller supplies now so results are deterministic. Thresholds are
// inclusive: a deal crosses into STALE/ROTTING exactly on the threshold day.
func ComputeHealth(lastActivity, now time.Time, cfg HealthConfig) Health {
	staleAfter := cfg.DaysUntilStale
	if staleAfter <= 0 {
		staleAfter = DefaultDaysUntilStale
	}
	rottingAfter := cfg.DaysUntilRotting
	if rottingAfter <= 0 {
		rottingAfter = DefaultDaysUntilRotting
	}

	days := int(now.Sub(lastActivity).Hours() / 24)
	if days < 0 {
		days = 0
	}

	status := Healthy
	switch {
	case days >= rottingAfter:
		status = Rotting
	case days >= staleAfter:
		status = Stale
	}

	return Health{Status: status, DaysSinceActivity: days}
}
