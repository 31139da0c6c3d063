// Package telemetry wires up structured logging and Prometheus metrics the
// way the rest of the pipeline expects: a subsystem-prefixed *log.Logger for
// operational trace lines (matching the teacher's "[EVENTS]"/"[PUBSUB]"
// idiom) plus slog for structured fields consumed by log aggregation.
package telemetry

import (
	"log"
	"log/slog"
	"os"
)

// NewLogger returns a subsystem-prefixed logger, e.g. NewLogger("VAULT").
func NewLogger(subsystem string) *log.Logger {
	return log.New(log.Writer(), "["+subsystem+"] ", log.LstdFlags)
}

// Init configures the default slog handler. Call once at process startup.
func Init(env string) {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

// WithTenant returns a logger pre-populated with the organization_id field,
// the minimum context every discovery-pipeline log line should carry.
func WithTenant(organizationID string) *slog.Logger {
	return slog.Default().With("organization_id", organizationID)
}
