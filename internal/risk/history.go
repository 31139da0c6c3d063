package risk

import (
	"strconv"
	"time"
)

// HistoryPoint is one recomputation record that Diff compares against.
// It is not persisted itself; the repository stores each assessment as a
// risk_assessments row and returns an automation's history by row count,
// not by day window.
type HistoryPoint struct {
	AutomationID string
	OrganizationID string
	At           time.Time
	Score        int
	OverallRisk  Level
	Changes      []string // e.g. "riskScore: 40 -> 85", "overallRisk: medium -> high"
}

// Diff compares a new Assessment against the previous HistoryPoint (if
// any) and describes what changed, so callers don't have to.
func Diff(previous *HistoryPoint, next Assessment) []string {
	if previous == nil {
		return []string{"initial assessment"}
	}
	var changes []string
	if previous.Score != next.RiskScore {
		changes = append(changes, formatChange("riskScore", previous.Score, next.RiskScore))
	}
	if previous.OverallRisk != next.OverallRisk {
		changes = append(changes, formatChange("overallRisk", string(previous.OverallRisk), string(next.OverallRisk)))
	}
	return changes
}

func formatChange(field string, from, to any) string {
	return field + ": " + toString(from) + " -> " + toString(to)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
