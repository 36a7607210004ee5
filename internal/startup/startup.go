// Package startup drives a freshly launched GUI process to its ready
// state. The first visible dialog is a race between the expected target
// and several alternates (already running, corrupt input, missing
// libraries); this machine classifies whichever wins and reacts with a
// kind-specific dismissal or a terminal failure.
package startup

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akeller/blindpilot/internal/window"
)

// A dialog that keeps reappearing after dismissal means the launch is
// broken, not racing; the machine gives up rather than loop.
const maxDismissals = 3

// observer is the subset of window.Observer the machine needs.
type observer interface {
	WaitForWindow(spec window.WaitSpec) ([]window.Handle, error)
}

// Handler reacts to one alternate dialog kind.
type Handler struct {
	// Kind matches window.Alternate.Kind.
	Kind string
	// Fatal marks dialogs that mean the application reported an internal
	// error; the run aborts instead of dismissing.
	Fatal bool
	// ExitCode is the process exit status for a fatal kind. Zero means
	// the generic fatal-dialog code chosen by the caller.
	ExitCode int
	// Dismiss closes the dialog via its own input sequence. Unused for
	// fatal kinds.
	Dismiss func() error
}

// FatalDialogError aborts the run because a fatal alternate dialog was
// observed, or an alternate had no registered handler.
type FatalDialogError struct {
	Kind     string
	ExitCode int
}

func (e *FatalDialogError) Error() string {
	return fmt.Sprintf("fatal dialog %q encountered during startup", e.Kind)
}

// Machine composes the window observer with dismiss handlers into a
// bounded-retry wait for the application's ready state.
type Machine struct {
	obs          observer
	handlers     map[string]Handler
	retryTimeout time.Duration
	log          *slog.Logger
}

// NewMachine creates a Machine. retryTimeout bounds each secondary wait
// entered after a dismissal or a first timeout.
func NewMachine(obs observer, handlers []Handler, retryTimeout time.Duration, log *slog.Logger) *Machine {
	byKind := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind] = h
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		obs:          obs,
		handlers:     byKind,
		retryTimeout: retryTimeout,
		log:          log,
	}
}

// WaitReady waits for the target window described by spec.
//
// AlternateFound runs the kind's dismiss handler and resumes waiting with
// the short secondary timeout. A fatal or unknown kind is terminal, as is
// a second timeout: a truly broken launch must fail detectably instead of
// retrying forever.
func (m *Machine) WaitReady(spec window.WaitSpec) ([]window.Handle, error) {
	timeouts := 0
	dismissed := 0

	for {
		handles, err := m.obs.WaitForWindow(spec)
		if err == nil {
			m.log.Debug("application ready", "label", spec.Label)
			return handles, nil
		}

		var alt *window.AlternateError
		if errors.As(err, &alt) {
			h, ok := m.handlers[alt.Kind]
			if !ok {
				m.log.Error("alternate dialog with no handler", "kind", alt.Kind)
				return nil, &FatalDialogError{Kind: alt.Kind}
			}
			if h.Fatal {
				m.log.Error("fatal dialog encountered", "kind", alt.Kind)
				return nil, &FatalDialogError{Kind: alt.Kind, ExitCode: h.ExitCode}
			}
			m.log.Info("dismissing alternate dialog", "kind", alt.Kind, "pattern", alt.Pattern)
			if derr := h.Dismiss(); derr != nil {
				return nil, fmt.Errorf("dismissing %q: %w", alt.Kind, derr)
			}
			dismissed++
			if dismissed >= maxDismissals {
				return nil, fmt.Errorf("dialog %q keeps reappearing after %d dismissals", alt.Kind, dismissed)
			}
			spec.Timeout = m.retryTimeout
			continue
		}

		var to *window.TimeoutError
		if errors.As(err, &to) {
			timeouts++
			if timeouts >= 2 {
				return nil, err
			}
			m.log.Debug("startup wait timed out, retrying once", "label", spec.Label)
			spec.Timeout = m.retryTimeout
			continue
		}

		return nil, err
	}
}
