package detection

import (
	"fmt"
	"sort"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
)

// DetectorConfiguration holds per-tenant thresholds and toggles for each
// detector (spec.md §3). Versioned by the caller (repository layer);
// this struct is the effective, already-resolved set of values a
// detection run reads.
type DetectorConfiguration struct {
	Version int

	VelocityEnabled       bool
	VelocityThreshold     int           // N events
	VelocityWindow        time.Duration // within Δt

	BatchEnabled   bool
	BatchThreshold int // cardinality of TargetIDs in one event

	OffHoursEnabled    bool
	BusinessHourStart  int // 0-23, tenant local time
	BusinessHourEnd    int
	BusinessDays       map[time.Weekday]bool
}

// DefaultDetectorConfiguration matches internal/config's Detection
// section defaults.
func DefaultDetectorConfiguration() DetectorConfiguration {
	return DetectorConfiguration{
		VelocityEnabled:   true,
		VelocityThreshold: 20,
		VelocityWindow:    time.Minute,
		BatchEnabled:      true,
		BatchThreshold:    50,
		OffHoursEnabled:   true,
		BusinessHourStart: 9,
		BusinessHourEnd:   18,
		BusinessDays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}
}

// VelocityDetector flags bursts: N events within Δt above cfg's
// threshold. Pure function over a window of already-fetched events,
// unit tested directly without any connector dependency.
func VelocityDetector(events []connector.NormalizedAuditEvent, cfg DetectorConfiguration) []RiskFactor {
	if !cfg.VelocityEnabled || len(events) == 0 {
		return nil
	}
	sorted := sortedByTime(events)

	var factors []RiskFactor
	windowStart := 0
	for i := range sorted {
		for sorted[i].OccurredAt.Sub(sorted[windowStart].OccurredAt) > cfg.VelocityWindow {
			windowStart++
		}
		count := i - windowStart + 1
		if count >= cfg.VelocityThreshold {
			factors = append(factors, RiskFactor{
				Code:        "velocity_burst",
				Description: fmt.Sprintf("%d events observed within %s", count, cfg.VelocityWindow),
				Weight:      0.2,
				Evidence:    []string{fmt.Sprintf("window [%s, %s]", sorted[windowStart].OccurredAt, sorted[i].OccurredAt)},
			})
			break
		}
	}
	return factors
}

// BatchDetector flags operations whose target cardinality exceeds cfg's
// threshold (e.g. 50 files touched in one event).
func BatchDetector(events []connector.NormalizedAuditEvent, cfg DetectorConfiguration) []RiskFactor {
	if !cfg.BatchEnabled {
		return nil
	}
	var factors []RiskFactor
	for _, e := range events {
		if len(e.TargetIDs) >= cfg.BatchThreshold {
			factors = append(factors, RiskFactor{
				Code:        "batch_operation",
				Description: fmt.Sprintf("single event touched %d targets", len(e.TargetIDs)),
				Weight:      0.25,
				Evidence:    []string{fmt.Sprintf("action=%s at=%s", e.Action, e.OccurredAt)},
			})
		}
	}
	return factors
}

// OffHoursDetector flags events outside cfg's configured business hours.
func OffHoursDetector(events []connector.NormalizedAuditEvent, cfg DetectorConfiguration) []RiskFactor {
	if !cfg.OffHoursEnabled {
		return nil
	}
	var offHoursCount int
	var sample string
	for _, e := range events {
		hour := e.OccurredAt.Hour()
		isBusinessDay := cfg.BusinessDays[e.OccurredAt.Weekday()]
		inHours := isBusinessDay && hour >= cfg.BusinessHourStart && hour < cfg.BusinessHourEnd
		if !inHours {
			offHoursCount++
			if sample == "" {
				sample = fmt.Sprintf("action=%s at=%s", e.Action, e.OccurredAt)
			}
		}
	}
	if offHoursCount == 0 {
		return nil
	}
	return []RiskFactor{{
		Code:        "off_hours_activity",
		Description: fmt.Sprintf("%d events outside configured business hours", offHoursCount),
		Weight:      0.15,
		Evidence:    []string{sample},
	}}
}

func sortedByTime(events []connector.NormalizedAuditEvent) []connector.NormalizedAuditEvent {
	out := make([]connector.NormalizedAuditEvent, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}
