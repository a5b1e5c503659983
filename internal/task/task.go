// Package task implements the shared periodic run loop for flarekeep's
// maintenance tasks.
//
// A Task supplies a name, a fixed interval, and a cycle body; a Runner
// drives it: one cycle immediately at startup, then one per tick. Cycles
// never overlap because a single goroutine runs them sequentially, and a
// cycle that fails or panics is contained and logged, never fatal. There
// is no backoff or early retry anywhere: a failed cycle waits for the
// next tick exactly like a successful one.
package task

import (
	"context"
	"time"
)

// Task is one periodic maintenance job.
type Task interface {
	// Name identifies the task in logs, metrics, and status reports.
	Name() string

	// Interval is the fixed cycle cadence. It is also the only retry
	// pacing the system has.
	Interval() time.Duration

	// ExecuteCycle runs one full pass over the task's units and reports
	// what happened to each. Implementations handle their own per-unit
	// errors; an error that escapes a unit fails that unit, not the
	// cycle.
	ExecuteCycle(ctx context.Context) *Result
}
