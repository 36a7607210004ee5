// Package window observes an X display for windows whose titles match a
// pattern. It is the foundational synchronization primitive: the driven
// application exposes no events, so everything above this package is built
// on polling title queries with explicit timeouts.
package window

import (
	"fmt"
	"time"
)

// Handle is an opaque X window identifier. Window identities can change
// between polls, so handles are re-queried as needed and never cached
// long-term.
type Handle uint64

// Alternate names a dialog other than the expected target that may
// legitimately appear first due to application state races.
type Alternate struct {
	// Kind is a stable label used to select a dismiss handler.
	Kind string
	// Pattern is a title regular expression in the backend's syntax.
	Pattern string
}

// WaitSpec describes a single wait-for-window call. It is immutable per
// call. Zero Timeout and PollInterval take the observer defaults.
type WaitSpec struct {
	// Label identifies the wait in logs and error messages.
	Label string
	// Target is the title pattern that satisfies the wait.
	Target string
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// Alternates are checked, in order, only when the target does not
	// match. A window matching both target and an alternate therefore
	// reports the target; alternates exist precisely because they are
	// expected transiently before the target is reachable.
	Alternates []Alternate
	// Exclude is a window id ignored by both target and alternate
	// matching, typically the caller's own already-known window.
	Exclude Handle
	// PollInterval overrides the observer poll interval for this call.
	PollInterval time.Duration
}

// Backend is the windowing query interface. Implementations must be safe
// to call repeatedly at poll frequency.
type Backend interface {
	// Search returns the ids of all visible windows whose title matches
	// the pattern. No match is ([]Handle{}, nil), not an error.
	Search(pattern string) ([]Handle, error)
	// ActiveWindow returns the id of the focused window, or 0 when no
	// window currently holds input focus.
	ActiveWindow() (Handle, error)
	// Activate gives the window input focus.
	Activate(h Handle) error
	// Title returns the current title of the window.
	Title(h Handle) (string, error)
}

// AlternateError reports that an alternate pattern matched before the
// target. Callers dispatch on Kind to pick a dismiss procedure.
type AlternateError struct {
	Kind    string
	Pattern string
	Window  Handle
}

func (e *AlternateError) Error() string {
	return fmt.Sprintf("alternate window %q matched %q (id %d)", e.Kind, e.Pattern, e.Window)
}

// TimeoutError reports that a wait expired with neither the target nor
// any alternate observed.
type TimeoutError struct {
	Op      string
	Label   string
	Pattern string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s: no window matching %q within %v", e.Op, e.Label, e.Pattern, e.Timeout)
	}
	return fmt.Sprintf("%s: %s: not satisfied within %v", e.Op, e.Label, e.Timeout)
}
