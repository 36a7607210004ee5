package window

import (
	"log/slog"
	"time"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 200 * time.Millisecond
	minPollInterval     = 10 * time.Millisecond
)

// Observer polls a Backend until a WaitSpec is satisfied. The clock and
// sleep functions are injectable so tests run without real time.
type Observer struct {
	backend      Backend
	log          *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time
	sleep        func(time.Duration)
}

// Option configures an Observer.
type Option func(*Observer)

// WithTimeout sets the default timeout for waits that do not carry one.
func WithTimeout(d time.Duration) Option {
	return func(o *Observer) {
		o.timeout = d
	}
}

// WithPollInterval sets the default polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Observer) {
		o.pollInterval = d
	}
}

// WithClock replaces the wall clock and sleep function.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(o *Observer) {
		o.now = now
		o.sleep = sleep
	}
}

// WithLogger sets the observer's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Observer) {
		o.log = log
	}
}

// NewObserver creates an Observer over the given backend.
func NewObserver(backend Backend, opts ...Option) *Observer {
	o := &Observer{
		backend:      backend,
		log:          slog.Default(),
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WaitForWindow polls until a window matching spec.Target exists and
// returns its handle(s). It fails with *AlternateError when one of
// spec.Alternates matches first, and with *TimeoutError when the timeout
// elapses with no match at all. Within a single poll tick the target is
// checked before any alternate, so a window matching both reports the
// target.
func (o *Observer) WaitForWindow(spec WaitSpec) ([]Handle, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	poll := o.clampPoll(spec.PollInterval)

	deadline := o.now().Add(timeout)
	for {
		hits, err := o.backend.Search(spec.Target)
		if err != nil {
			return nil, err
		}
		hits = dropExcluded(hits, spec.Exclude)
		if len(hits) > 0 {
			o.log.Debug("window found", "label", spec.Label, "pattern", spec.Target, "windows", len(hits))
			return hits, nil
		}

		for _, alt := range spec.Alternates {
			altHits, err := o.backend.Search(alt.Pattern)
			if err != nil {
				return nil, err
			}
			altHits = dropExcluded(altHits, spec.Exclude)
			if len(altHits) > 0 {
				o.log.Debug("alternate window found", "label", spec.Label, "kind", alt.Kind, "pattern", alt.Pattern)
				return nil, &AlternateError{Kind: alt.Kind, Pattern: alt.Pattern, Window: altHits[0]}
			}
		}

		if !o.now().Before(deadline) {
			return nil, &TimeoutError{Op: "wait-for-window", Label: spec.Label, Pattern: spec.Target, Timeout: timeout}
		}
		o.sleep(poll)
	}
}

// WaitNotFocused polls until the given window no longer holds input
// focus, or the timeout elapses. A display with no focused window at all
// satisfies the wait.
func (o *Observer) WaitNotFocused(label string, h Handle, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = o.timeout
	}
	poll := o.clampPoll(0)

	deadline := o.now().Add(timeout)
	for {
		active, err := o.backend.ActiveWindow()
		if err != nil {
			return err
		}
		if active != h {
			o.log.Debug("window lost focus", "label", label, "window", h)
			return nil
		}
		if !o.now().Before(deadline) {
			return &TimeoutError{Op: "wait-not-focused", Label: label, Timeout: timeout}
		}
		o.sleep(poll)
	}
}

// Focus brings the window to input focus.
func (o *Observer) Focus(h Handle) error {
	return o.backend.Activate(h)
}

func (o *Observer) clampPoll(d time.Duration) time.Duration {
	if d <= 0 {
		d = o.pollInterval
	}
	if d < minPollInterval {
		d = minPollInterval
	}
	return d
}

func dropExcluded(hits []Handle, exclude Handle) []Handle {
	if exclude == 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h != exclude {
			kept = append(kept, h)
		}
	}
	return kept
}
