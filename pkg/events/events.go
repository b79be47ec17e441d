// Package events defines the observer callbacks the core exposes to a
// front-end. Callbacks are named slots on a struct passed at construction;
// nil slots and nil receivers are no-ops, so callers never need guards.
package events

import "time"

// StepState is the lifecycle state of one provisioning pipeline step.
type StepState int

const (
	StepPending StepState = iota
	StepActive
	StepDone
	StepFailed
)

// String returns a short display form of the state.
func (s StepState) String() string {
	switch s {
	case StepActive:
		return "active"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Callbacks holds the named event sinks. All fields are optional.
type Callbacks struct {
	// OnStep reports a provisioning pipeline step changing state.
	OnStep func(step string, state StepState)
	// OnProgress reports progress of a long operation. total may be zero
	// when the extent is unknown.
	OnProgress func(label string, done, total int64)
	// OnDownload reports one completed model download.
	OnDownload func(name string, bytes int64, elapsed time.Duration)
}

// Step invokes OnStep when set.
func (c *Callbacks) Step(step string, state StepState) {
	if c != nil && c.OnStep != nil {
		c.OnStep(step, state)
	}
}

// Progress invokes OnProgress when set.
func (c *Callbacks) Progress(label string, done, total int64) {
	if c != nil && c.OnProgress != nil {
		c.OnProgress(label, done, total)
	}
}

// Download invokes OnDownload when set.
func (c *Callbacks) Download(name string, bytes int64, elapsed time.Duration) {
	if c != nil && c.OnDownload != nil {
		c.OnDownload(name, bytes, elapsed)
	}
}
