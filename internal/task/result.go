package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action describes what a cycle did to one unit of work.
type Action string

const (
	// ActionRenew indicates a certificate group was renewed.
	ActionRenew Action = "renew"
	// ActionSkip indicates a unit needed no attention this cycle (for
	// example a certificate not yet within its renewal threshold).
	ActionSkip Action = "skip"
	// ActionCreate indicates a DNS record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a DNS record's content was rewritten.
	ActionUpdate Action = "update"
	// ActionNone indicates a record was already in the desired state and
	// no write was issued.
	ActionNone Action = "none"
)

// Outcome classifies a whole cycle.
type Outcome string

const (
	// OutcomeSuccess means every unit either succeeded or needed nothing.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means some units succeeded and some failed.
	OutcomePartial Outcome = "partial"
	// OutcomeFailure means every unit failed, or the cycle could not
	// attempt any unit at all.
	OutcomeFailure Outcome = "failure"
)

// Unit records the fate of one unit of work: a certificate group for the
// certificate task, a single DNS record for the DDNS task.
type Unit struct {
	// Name identifies the unit: a group key or a record FQDN with type.
	Name string

	// Action is what the cycle did, or attempted, for this unit.
	Action Action

	// Err is set when the unit failed. Failures are isolated: the cycle
	// carries on with the remaining units.
	Err error
}

// Failed reports whether this unit failed.
func (u Unit) Failed() bool {
	return u.Err != nil
}

// String returns a human-readable representation of the unit.
func (u Unit) String() string {
	if u.Err != nil {
		return fmt.Sprintf("[failed] %s %s: %v", u.Action, u.Name, u.Err)
	}
	return fmt.Sprintf("[ok] %s %s", u.Action, u.Name)
}

// Result holds the complete rollup of one cycle.
type Result struct {
	// Task is the owning task's name.
	Task string

	// StartTime is when the cycle started.
	StartTime time.Time

	// EndTime is when the cycle completed.
	EndTime time.Time

	// Units lists every unit the cycle attempted, in order.
	Units []Unit

	// CycleError is set when the cycle failed before any unit could be
	// attempted, such as the public IP lookup failing. A cycle error
	// always means zero unit attempts.
	CycleError error
}

// NewResult creates a Result with the start time set to now.
func NewResult(taskName string) *Result {
	return &Result{
		Task:      taskName,
		StartTime: time.Now(),
	}
}

// Complete marks the cycle finished with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns how long the cycle took, or has taken so far.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Add records one unit's fate.
func (r *Result) Add(name string, action Action, err error) {
	r.Units = append(r.Units, Unit{Name: name, Action: action, Err: err})
}

// Fail marks the whole cycle failed before any unit ran.
func (r *Result) Fail(err error) *Result {
	r.CycleError = err
	return r
}

// Applied returns the units where a write succeeded (renew, create,
// update).
func (r *Result) Applied() []Unit {
	var out []Unit
	for _, u := range r.Units {
		if u.Err == nil && (u.Action == ActionRenew || u.Action == ActionCreate || u.Action == ActionUpdate) {
			out = append(out, u)
		}
	}
	return out
}

// Failed returns the units that failed.
func (r *Result) Failed() []Unit {
	var out []Unit
	for _, u := range r.Units {
		if u.Failed() {
			out = append(out, u)
		}
	}
	return out
}

// FailedCount returns the number of failed units.
func (r *Result) FailedCount() int {
	return len(r.Failed())
}

// AppliedCount returns the number of successful writes.
func (r *Result) AppliedCount() int {
	return len(r.Applied())
}

// Outcome classifies the cycle. A cycle with no units and no cycle error
// is a success: there was nothing to do and nothing went wrong.
func (r *Result) Outcome() Outcome {
	if r.CycleError != nil {
		return OutcomeFailure
	}
	failed := r.FailedCount()
	switch {
	case failed == 0:
		return OutcomeSuccess
	case failed == len(r.Units):
		return OutcomeFailure
	default:
		return OutcomePartial
	}
}

// Err returns every error from the cycle joined together, or nil for a
// clean cycle.
func (r *Result) Err() error {
	errs := make([]error, 0, len(r.Units)+1)
	if r.CycleError != nil {
		errs = append(errs, r.CycleError)
	}
	for _, u := range r.Units {
		if u.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Name, u.Err))
		}
	}
	return errors.Join(errs...)
}

// Summary returns a one-line human-readable rollup.
func (r *Result) Summary() string {
	dur := r.Duration().Round(time.Millisecond)

	if r.CycleError != nil {
		return fmt.Sprintf("%s cycle failed in %s: %v", r.Task, dur, r.CycleError)
	}

	var unchanged, skipped int
	for _, u := range r.Units {
		if u.Err != nil {
			continue
		}
		switch u.Action {
		case ActionNone:
			unchanged++
		case ActionSkip:
			skipped++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s cycle %s in %s: %d units", r.Task, r.Outcome(), dur, len(r.Units))
	fmt.Fprintf(&sb, " (%d applied, %d unchanged, %d skipped, %d failed)",
		r.AppliedCount(), unchanged, skipped, r.FailedCount())
	return sb.String()
}
