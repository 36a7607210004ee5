// Package run composes the automation primitives into one sequential,
// crash-safe run: sandbox and guard wrap everything, the display session
// wraps the supervised application, and teardown unwinds in reverse code
// order. A Context value owns every scoped resource; nothing is global.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akeller/blindpilot/internal/artifact"
	"github.com/akeller/blindpilot/internal/config"
	"github.com/akeller/blindpilot/internal/display"
	"github.com/akeller/blindpilot/internal/guard"
	"github.com/akeller/blindpilot/internal/input"
	"github.com/akeller/blindpilot/internal/logging"
	"github.com/akeller/blindpilot/internal/proc"
	"github.com/akeller/blindpilot/internal/sandbox"
	"github.com/akeller/blindpilot/internal/startup"
	"github.com/akeller/blindpilot/internal/window"
	"github.com/akeller/blindpilot/internal/xdocli"
)

// Options are per-invocation knobs that do not belong in the scenario.
type Options struct {
	// Step enables single-step chord confirmation on StepIn/StepOut.
	Step    bool
	StepIn  io.Reader
	StepOut io.Writer

	// XdotoolPath and XclipPath override tool resolution.
	XdotoolPath string
	XclipPath   string
}

// Context owns the scoped resources of one run.
type Context struct {
	cfg *config.Scenario
	log *slog.Logger

	sandbox *sandbox.Sandbox
	guards  []*guard.Snapshot
	session *display.Session
	app     *proc.Proc

	observer  *window.Observer
	sequencer *input.Sequencer
	waiter    *artifact.Waiter
}

// Execute performs one full run and returns the process exit code. The
// returned error carries detail for logging; the code alone is the
// machine-readable outcome.
func Execute(ctx context.Context, cfg *config.Scenario, opts Options) (int, error) {
	rc := &Context{
		cfg:     cfg,
		log:     logging.New("run"),
		sandbox: &sandbox.Sandbox{},
	}

	// Preconditions run before any process is spawned or file is moved.
	if code, err := rc.checkPreconditions(opts); err != nil {
		return code, err
	}

	// Config sandbox and document guard wrap the whole run. Their
	// restores are registered as soon as they succeed, so every later
	// exit path, error or not, unwinds them. The CLI converts SIGINT and
	// SIGTERM into context cancellation so these defers also run on
	// abnormal termination.
	if code, err := rc.stashConfigs(); err != nil {
		return code, err
	}
	defer rc.restoreConfigs()

	if err := rc.takeGuards(); err != nil {
		return ExitUsage, err
	}
	defer rc.restoreGuards()

	if err := ctx.Err(); err != nil {
		return ExitInterrupted, err
	}

	// Display session wraps the supervised application.
	sess, err := display.Start(logging.New("display"), display.Options{
		Width:         cfg.Display.Width,
		Height:        cfg.Display.Height,
		Depth:         cfg.Display.Depth,
		WindowManager: cfg.Display.WindowManager,
		VNC:           cfg.Display.VNC,
		RecordPath:    cfg.Display.Record,
	})
	if err != nil {
		return ExitUsage, err
	}
	rc.session = sess
	defer func() {
		if err := sess.Close(); err != nil {
			rc.log.Warn("display teardown reported errors", "err", err)
		}
	}()

	if err := rc.buildPrimitives(opts); err != nil {
		return ExitMissingTool, err
	}

	// A stale artifact from a previous run must never satisfy this run's
	// wait; remove it before the application can produce anything.
	if cfg.Artifact.Path != "" {
		if err := rc.waiter.ClearStale(cfg.Artifact.Path); err != nil {
			return ExitUsage, fmt.Errorf("clearing stale artifact: %w", err)
		}
	}

	if code, err := rc.launchApp(); err != nil {
		return code, err
	}
	defer rc.app.Stop()

	if err := ctx.Err(); err != nil {
		return ExitInterrupted, err
	}

	ready, code, err := rc.waitReady()
	if err != nil {
		return code, err
	}

	if err := rc.runScript(); err != nil {
		return ExitUsage, fmt.Errorf("input script: %w", err)
	}

	if cfg.Artifact.Path != "" {
		if err := rc.waiter.Wait(rc.app.Handle(), cfg.Artifact.Path, cfg.Artifact.Timeout.Std()); err != nil {
			var to *artifact.TimeoutError
			if errors.As(err, &to) {
				return ExitArtifactTimeout, err
			}
			return ExitUsage, err
		}
	}

	rc.quitGracefully(ready)
	return ExitOK, nil
}

func (rc *Context) checkPreconditions(opts Options) (int, error) {
	cfg := rc.cfg
	if cfg.Input.Path != "" {
		if _, err := os.Stat(cfg.Input.Path); err != nil {
			return ExitNoInput, fmt.Errorf("input file %s does not exist", cfg.Input.Path)
		}
		if cfg.Input.Extension != "" && filepath.Ext(cfg.Input.Path) != cfg.Input.Extension {
			return ExitWrongExt, fmt.Errorf("input files must use the %s extension: %s", cfg.Input.Extension, cfg.Input.Path)
		}
	}
	return ExitOK, nil
}

func (rc *Context) stashConfigs() (int, error) {
	log := logging.New("sandbox")
	for _, sb := range rc.cfg.Sandbox {
		if err := rc.sandbox.Stash(log, sb.Path, []byte(sb.Content)); err != nil {
			var exists *sandbox.BackupExistsError
			if errors.As(err, &exists) {
				return ExitConfigBackup, err
			}
			return ExitUsage, err
		}
	}
	return ExitOK, nil
}

func (rc *Context) restoreConfigs() {
	if err := rc.sandbox.RestoreAll(); err != nil {
		rc.log.Warn("config restore reported errors", "err", err)
	}
}

func (rc *Context) takeGuards() error {
	log := logging.New("guard")
	for _, path := range rc.cfg.Guard {
		snap, err := guard.Take(log, path)
		if err != nil {
			return err
		}
		rc.guards = append(rc.guards, snap)
	}
	return nil
}

func (rc *Context) restoreGuards() {
	for i := len(rc.guards) - 1; i >= 0; i-- {
		if err := rc.guards[i].Restore(); err != nil {
			rc.log.Warn("document restore failed", "err", err)
		}
	}
}

// buildPrimitives resolves the input tooling and wires the observer,
// sequencer and waiter to the session display.
func (rc *Context) buildPrimitives(opts Options) error {
	xdotoolPath, _, err := xdocli.Resolve(opts.XdotoolPath, "BLINDPILOT_XDOTOOL", "xdotool")
	if err != nil {
		return err
	}
	xclipPath, _, xclipErr := xdocli.Resolve(opts.XclipPath, "BLINDPILOT_XCLIP", "xclip")

	disp := rc.session.Display()
	xdo := xdocli.New(xdotoolPath, disp)

	rc.observer = window.NewObserver(window.NewXdoBackend(xdo),
		window.WithPollInterval(rc.cfg.Waits.PollInterval.Std()),
		window.WithLogger(logging.New("window")))

	seqOpts := []input.Option{input.WithLogger(logging.New("input"))}
	if opts.Step {
		seqOpts = append(seqOpts, input.WithStepMode(opts.StepIn, opts.StepOut))
	}
	var clip input.Runner
	if xclipErr == nil {
		clip = xdocli.New(xclipPath, disp)
	}
	rc.sequencer = input.NewSequencer(xdo, clip, seqOpts...)

	rc.waiter = artifact.NewWaiter(
		artifact.WithPollInterval(rc.cfg.Waits.PollInterval.Std()),
		artifact.WithTolerance(rc.cfg.Waits.ArtifactTolerance.Std()),
		artifact.WithLogger(logging.New("artifact")))
	return nil
}

func (rc *Context) launchApp() (int, error) {
	cfg := rc.cfg
	args := append([]string{}, cfg.App.Args...)
	if cfg.Input.Path != "" {
		args = append(args, cfg.Input.Path)
	}
	p, err := proc.Start(logging.New("proc"), cfg.App.Command, args,
		proc.WithDir(cfg.App.Workdir),
		proc.WithEnv("DISPLAY="+rc.session.Display()))
	if err != nil {
		return ExitUsage, fmt.Errorf("launching %s: %w", cfg.App.Command, err)
	}
	rc.app = p
	return ExitOK, nil
}

// waitReady runs the startup state machine and maps its outcomes to exit
// codes.
func (rc *Context) waitReady() ([]window.Handle, int, error) {
	cfg := rc.cfg

	var alternates []window.Alternate
	handlers := make([]startup.Handler, 0, len(cfg.Startup.Alternates))
	for _, alt := range cfg.Startup.Alternates {
		alternates = append(alternates, window.Alternate{Kind: alt.Kind, Pattern: alt.Pattern})
		keys := chords(alt.Keys)
		handlers = append(handlers, startup.Handler{
			Kind:     alt.Kind,
			Fatal:    alt.Fatal,
			ExitCode: ExitFatalDialog,
			Dismiss: func() error {
				return rc.sequencer.Send(keys...)
			},
		})
	}

	machine := startup.NewMachine(rc.observer, handlers, cfg.Startup.RetryTimeout.Std(), logging.New("startup"))
	handles, err := machine.WaitReady(window.WaitSpec{
		Label:      "startup",
		Target:     cfg.Startup.Target,
		Timeout:    cfg.Startup.Timeout.Std(),
		Alternates: alternates,
	})
	if err != nil {
		var fatal *startup.FatalDialogError
		if errors.As(err, &fatal) {
			code := fatal.ExitCode
			if code == 0 {
				code = ExitFatalDialog
			}
			return nil, code, err
		}
		var to *window.TimeoutError
		if errors.As(err, &to) {
			return nil, ExitStartupTimeout, err
		}
		return nil, ExitUsage, err
	}
	return handles, ExitOK, nil
}

func (rc *Context) runScript() error {
	if len(rc.cfg.Script) == 0 {
		return nil
	}
	return rc.sequencer.Send(chords(rc.cfg.Script)...)
}

// quitGracefully asks the application to exit through its own quit
// command, observed as the target window losing focus. Failures here are
// tolerated: the supervisor's deferred Stop is the safety net, and a hung
// application on the way out is not an automation error.
func (rc *Context) quitGracefully(ready []window.Handle) {
	if len(rc.cfg.Quit) == 0 || len(ready) == 0 {
		return
	}
	target := ready[0]
	if err := rc.observer.Focus(target); err != nil {
		rc.log.Debug("focusing target for quit failed", "err", err)
	}
	if err := rc.sequencer.Send(chords(rc.cfg.Quit)...); err != nil {
		rc.log.Debug("quit sequence failed", "err", err)
		return
	}
	if err := rc.observer.WaitNotFocused("quit", target, 10*time.Second); err != nil {
		rc.log.Debug("application did not exit gracefully", "err", err)
	}
}

func chords(raw []string) []input.Chord {
	cs := make([]input.Chord, len(raw))
	for i, r := range raw {
		cs[i] = input.Chord(r)
	}
	return cs
}
