// Package proc supervises the external processes of a run: the driven
// application, the virtual display server and its optional companions.
// Every supervised process is guaranteed a termination signal on every
// exit path from its scope; graceful shutdown, when wanted, is driven by
// the caller before Stop and Stop is the unconditional fallback.
package proc

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const defaultGrace = 3 * time.Second

// Handle identifies a supervised process. It is consumed read-only by the
// artifact waiter and document guard; ownership of the process itself
// stays with the Proc.
type Handle struct {
	PID       int
	StartedAt time.Time
}

// Proc is a running supervised process.
type Proc struct {
	name   string
	cmd    *exec.Cmd
	handle Handle
	log    *slog.Logger
	grace  time.Duration

	done     chan struct{}
	exitCode int

	stopOnce sync.Once
}

type options struct {
	env    []string
	dir    string
	stdout io.Writer
	stderr io.Writer
	grace  time.Duration
}

// Option configures Start.
type Option func(*options)

// WithEnv appends "KEY=VALUE" entries to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(o *options) {
		o.env = append(o.env, kv...)
	}
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithStdout redirects the process's stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithStderr redirects the process's stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithGrace sets how long Stop waits between SIGTERM and SIGKILL.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// Start launches a command in its own process group and begins reaping it
// in the background. Callers must arrange `defer p.Stop()` immediately
// after a successful Start.
func Start(log *slog.Logger, name string, args []string, opts ...Option) (*Proc, error) {
	o := options{grace: defaultGrace}
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = o.dir
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}
	cmd.Stdout = o.stdout
	cmd.Stderr = o.stderr
	// Own process group, so Stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Proc{
		name: name,
		cmd:  cmd,
		handle: Handle{
			PID:       cmd.Process.Pid,
			StartedAt: time.Now(),
		},
		log:   log,
		grace: o.grace,
		done:  make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		if cmd.ProcessState != nil {
			p.exitCode = cmd.ProcessState.ExitCode()
		}
		if err != nil {
			p.log.Debug("process exited", "name", p.name, "pid", p.handle.PID, "err", err)
		}
		close(p.done)
	}()

	log.Debug("process started", "name", name, "pid", p.handle.PID)
	return p, nil
}

// Handle returns the process id and start time.
func (p *Proc) Handle() Handle {
	return p.handle
}

// Alive reports whether the process is still running.
func (p *Proc) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return unix.Kill(p.handle.PID, 0) == nil
	}
}

// Wait blocks until the process exits or the timeout elapses. It returns
// the exit code and whether the process exited in time.
func (p *Proc) Wait(timeout time.Duration) (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	case <-time.After(timeout):
		return 0, false
	}
}

// Signal delivers a signal to the process group.
func (p *Proc) Signal(sig syscall.Signal) error {
	return unix.Kill(-p.handle.PID, sig)
}

// Stop terminates the process group: SIGTERM, a bounded grace period,
// then SIGKILL. It is idempotent and never fails; a process that refuses
// to die is a debug-level event, not an error, because Stop is the safety
// net behind the graceful-quit path.
func (p *Proc) Stop() {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := p.Signal(unix.SIGTERM); err != nil {
			p.log.Debug("sigterm failed", "name", p.name, "pid", p.handle.PID, "err", err)
		}
		select {
		case <-p.done:
			return
		case <-time.After(p.grace):
		}

		p.log.Debug("forcing termination", "name", p.name, "pid", p.handle.PID)
		if err := p.Signal(unix.SIGKILL); err != nil {
			p.log.Debug("sigkill failed", "name", p.name, "pid", p.handle.PID, "err", err)
		}
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			p.log.Debug("process did not reap after sigkill", "name", p.name, "pid", p.handle.PID)
		}
	})
}
