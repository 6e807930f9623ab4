// Package bargein implements the barge-in state machine consulted by the
// synthesis pipeline on every chunk: a pause latch plus a one-shot cancel
// flag.
//
// The controller is the only per-session state written by two logical tasks
// (the control channel mutates it, the synthesis pipeline reads and consumes
// it), so all accesses go through a mutex. Reads may be stale by at most one
// chunk interval, which is acceptable.
//
// All transitions are idempotent: barge-in commands race with the synthesis
// loop's own consumption of the cancel flag, and redundant commands must
// never error.
package bargein

import "sync"

// State is the externally visible barge-in state of a session.
type State string

const (
	// StateNormal means synthesis proceeds unhindered.
	StateNormal State = "normal"

	// StatePaused means the synthesis loop holds position without emitting.
	StatePaused State = "paused"

	// StateCanceled means a cancel is pending: the next chunk boundary
	// aborts the active synthesis and clears the flag.
	StateCanceled State = "canceled"
)

// Action is a barge-in command issued over the control channel.
type Action string

const (
	ActionPause  Action = "pause"
	ActionCancel Action = "cancel"
	ActionResume Action = "resume"
)

// Valid reports whether a is a recognised action.
func (a Action) Valid() bool {
	switch a {
	case ActionPause, ActionCancel, ActionResume:
		return true
	}
	return false
}

// Controller holds the pause latch and the cancel flag for one session.
// The zero value is a controller in StateNormal. Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	paused   bool
	canceled bool
}

// Apply executes a transition and returns the resulting state. Unknown
// actions are a no-op; the caller validates with [Action.Valid] first.
//
// Transition semantics: pause sets the latch (no-op when already set);
// resume clears only the latch, never the cancel flag; cancel sets the flag
// from any state and leaves the latch untouched.
func (c *Controller) Apply(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch a {
	case ActionPause:
		c.paused = true
	case ActionResume:
		c.paused = false
	case ActionCancel:
		c.canceled = true
	}
	return c.stateLocked()
}

// State returns the current externally visible state. A pending cancel
// dominates the pause latch.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Paused reports whether the pause latch is set, independent of any pending
// cancel. The synthesis loop polls this while holding position.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ConsumeCancel atomically reads and clears the cancel flag. The flag is
// one-shot: the first synthesis loop observation consumes it, so it never
// leaks into a subsequent synthesis request.
func (c *Controller) ConsumeCancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.canceled
	c.canceled = false
	return was
}

func (c *Controller) stateLocked() State {
	switch {
	case c.canceled:
		return StateCanceled
	case c.paused:
		return StatePaused
	default:
		return StateNormal
	}
}
