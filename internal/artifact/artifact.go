// Package artifact waits for the driven application to produce an output
// file. The application emits no completion signal, so a file appearing on
// disk with a modification time after process start is the only reliable
// substitute.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/akeller/blindpilot/internal/proc"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultTolerance    = 2 * time.Second
)

// TimeoutError reports that the artifact did not appear (with an
// acceptable timestamp) within the budget.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("artifact %s not produced within %v", e.Path, e.Timeout)
}

// Waiter polls the filesystem for artifacts.
type Waiter struct {
	log          *slog.Logger
	pollInterval time.Duration
	// tolerance absorbs the skew between the recorded process start and
	// filesystem timestamp resolution; a file may legitimately carry an
	// mtime slightly before the start we observed.
	tolerance time.Duration
	now       func() time.Time
	sleep     func(time.Duration)
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		w.pollInterval = d
	}
}

// WithTolerance sets the negative timestamp tolerance.
func WithTolerance(d time.Duration) Option {
	return func(w *Waiter) {
		w.tolerance = d
	}
}

// WithClock replaces the wall clock and sleep function.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(w *Waiter) {
		w.now = now
		w.sleep = sleep
	}
}

// WithLogger sets the waiter's logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Waiter) {
		w.log = log
	}
}

// NewWaiter creates a Waiter.
func NewWaiter(opts ...Option) *Waiter {
	w := &Waiter{
		log:          slog.Default(),
		pollInterval: defaultPollInterval,
		tolerance:    defaultTolerance,
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait blocks until path exists with a modification time no earlier than
// the process start minus the tolerance, or fails with *TimeoutError.
// A stale file left over from a previous run never satisfies the wait,
// even when the caller forgot to clear it.
func (w *Waiter) Wait(h proc.Handle, path string, timeout time.Duration) error {
	earliest := h.StartedAt.Add(-w.tolerance)
	deadline := w.now().Add(timeout)
	for {
		info, err := os.Stat(path)
		if err == nil && !info.ModTime().Before(earliest) {
			w.log.Debug("artifact produced", "path", path, "mtime", info.ModTime())
			return nil
		}
		if err == nil {
			w.log.Debug("artifact predates process start", "path", path, "mtime", info.ModTime(), "earliest", earliest)
		}
		if !w.now().Before(deadline) {
			return &TimeoutError{Path: path, Timeout: timeout}
		}
		w.sleep(w.pollInterval)
	}
}

// ClearStale removes a pre-existing file at path so the produced artifact
// cannot be confused with a previous run's output. The timestamp check in
// Wait remains as defense in depth.
func (w *Waiter) ClearStale(path string) error {
	err := os.Remove(path)
	if err == nil {
		w.log.Debug("removed stale artifact", "path", path)
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
