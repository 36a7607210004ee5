// Package input delivers ordered synthetic key chords to the focused
// window of the driven application. The sequencer is blind: no chord-level
// error detection exists, and sequence correctness is only verified later
// through window and artifact checkpoints.
package input

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// Runner executes an external input tool. *xdocli.Runner satisfies it.
type Runner interface {
	Run(args ...string) (string, error)
	RunInput(input string, args ...string) (string, error)
}

// Sequencer sends key chords and text through xdotool and sets clipboard
// content through xclip.
type Sequencer struct {
	keys    Runner
	clip    Runner
	log     *slog.Logger
	delay   time.Duration
	step    bool
	confirm *bufio.Reader
	prompt  io.Writer
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithKeyDelay sets the per-keystroke delay passed to the input tool.
func WithKeyDelay(d time.Duration) Option {
	return func(s *Sequencer) {
		s.delay = d
	}
}

// WithStepMode pauses before each chord until a newline is read from r.
// Diagnosis aid only; off by default.
func WithStepMode(r io.Reader, w io.Writer) Option {
	return func(s *Sequencer) {
		s.step = true
		s.confirm = bufio.NewReader(r)
		s.prompt = w
	}
}

// WithLogger sets the sequencer's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sequencer) {
		s.log = log
	}
}

// NewSequencer creates a Sequencer. keys runs xdotool; clip runs xclip
// and may be nil when clipboard support is not needed.
func NewSequencer(keys, clip Runner, opts ...Option) *Sequencer {
	s := &Sequencer{
		keys:  keys,
		clip:  clip,
		log:   slog.Default(),
		delay: 40 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers the chords in order to the currently focused window.
func (s *Sequencer) Send(chords ...Chord) error {
	for _, c := range chords {
		if s.step {
			if err := s.awaitConfirm(c); err != nil {
				return err
			}
		}
		s.log.Debug("sending chord", "chord", string(c))
		args := []string{"key", "--clearmodifiers", "--delay", s.delayMillis(), string(c)}
		if _, err := s.keys.Run(args...); err != nil {
			return fmt.Errorf("sending %q: %w", c, err)
		}
	}
	return nil
}

// Type sends a string as sequential keypresses.
func (s *Sequencer) Type(text string) error {
	s.log.Debug("typing text", "chars", len(text))
	if _, err := s.keys.Run("type", "--clearmodifiers", "--delay", s.delayMillis(), text); err != nil {
		return fmt.Errorf("typing text: %w", err)
	}
	return nil
}

// SetClipboard replaces the clipboard text content. Pasting a path beats
// simulating it character by character in dialogs whose text widgets eat
// keystrokes while rendering.
func (s *Sequencer) SetClipboard(text string) error {
	if s.clip == nil {
		return fmt.Errorf("no clipboard tool configured")
	}
	if _, err := s.clip.RunInput(text, "-selection", "clipboard"); err != nil {
		return fmt.Errorf("setting clipboard: %w", err)
	}
	return nil
}

// PastePath puts the path on the clipboard and sends the paste chord.
// Confirming the dialog stays with the caller's script.
func (s *Sequencer) PastePath(path string) error {
	if err := s.SetClipboard(path); err != nil {
		return err
	}
	return s.Send(Ctrl("v"))
}

func (s *Sequencer) awaitConfirm(c Chord) error {
	fmt.Fprintf(s.prompt, "next chord: %s (press enter) ", c)
	if _, err := s.confirm.ReadString('\n'); err != nil {
		return fmt.Errorf("step mode: %w", err)
	}
	return nil
}

func (s *Sequencer) delayMillis() string {
	return strconv.FormatInt(s.delay.Milliseconds(), 10)
}
