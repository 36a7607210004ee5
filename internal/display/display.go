// Package display provisions the off-screen rendering stack for a run:
// a virtual X server, and optionally a window manager, a remote-viewing
// endpoint and a screen recorder, as nested scoped resources. Teardown is
// strictly the reverse of startup; stopping the X server before the
// recorder has flushed corrupts the recording.
package display

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/akeller/blindpilot/internal/proc"
)

const (
	defaultWidth  = 1280
	defaultHeight = 1024
	defaultDepth  = 24

	firstDisplayNum = 99
	maxDisplayScan  = 50

	readyPollInterval   = 50 * time.Millisecond
	defaultReadyTimeout = 10 * time.Second
	recorderFlushGrace  = 5 * time.Second
)

// Options configures a Session.
type Options struct {
	Width  int
	Height int
	Depth  int

	// Display is the X display to use (":99"). Empty picks the first
	// free display number automatically.
	Display string

	// WindowManager is an optional window manager command started against
	// the display. Running one changes dialog focus and tab-order
	// behavior; automation sequences may need WM-specific adjustment.
	WindowManager string

	// VNC starts a remote-viewing endpoint for live operator observation.
	VNC     bool
	VNCPort int

	// RecordPath, when set, starts a screen recorder writing the named
	// artifact.
	RecordPath string

	XvfbPath   string
	FFmpegPath string
	VNCPath    string

	ReadyTimeout time.Duration

	// Test seams; empty means the real X locations under /tmp.
	LockDir   string
	SocketDir string
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.Depth <= 0 {
		o.Depth = defaultDepth
	}
	if o.XvfbPath == "" {
		o.XvfbPath = "Xvfb"
	}
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.VNCPath == "" {
		o.VNCPath = "x11vnc"
	}
	if o.VNCPort == 0 {
		o.VNCPort = 5900
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = defaultReadyTimeout
	}
	if o.LockDir == "" {
		o.LockDir = "/tmp"
	}
	if o.SocketDir == "" {
		o.SocketDir = "/tmp/.X11-unix"
	}
}

// Session is a running display stack.
type Session struct {
	log     *slog.Logger
	display string
	stack   []scoped
	closed  bool
}

// scoped is one acquired resource and how to release it.
type scoped struct {
	name string
	stop func() error
}

// Start brings up the display stack in order: X server, window manager,
// viewer, recorder. On a partial failure everything already started is
// torn down before returning.
func Start(log *slog.Logger, opts Options) (*Session, error) {
	opts.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	display := opts.Display
	if display == "" {
		var err error
		display, err = pickFreeDisplay(opts.LockDir, opts.SocketDir)
		if err != nil {
			return nil, err
		}
	}

	s := &Session{log: log, display: display}

	if err := s.startXvfb(opts); err != nil {
		return nil, s.failStart(err)
	}
	if opts.WindowManager != "" {
		if err := s.startWindowManager(opts); err != nil {
			return nil, s.failStart(err)
		}
	}
	if opts.VNC {
		if err := s.startViewer(opts); err != nil {
			return nil, s.failStart(err)
		}
	}
	if opts.RecordPath != "" {
		if err := s.startRecorder(opts); err != nil {
			return nil, s.failStart(err)
		}
	}

	log.Debug("display session ready", "display", display)
	return s, nil
}

// Display returns the X display string (":99") for this session.
func (s *Session) Display() string {
	return s.display
}

// Close releases every resource in strict reverse acquisition order:
// recorder first, then viewer, then window manager, then the X server.
// Idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.stack) - 1; i >= 0; i-- {
		r := s.stack[i]
		s.log.Debug("stopping display resource", "resource", r.name)
		if err := r.stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", r.name, err))
		}
	}
	s.stack = nil
	return errors.Join(errs...)
}

func (s *Session) failStart(err error) error {
	if cerr := s.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func (s *Session) push(name string, stop func() error) {
	s.stack = append(s.stack, scoped{name: name, stop: stop})
}

func (s *Session) startXvfb(opts Options) error {
	screen := fmt.Sprintf("%dx%dx%d", opts.Width, opts.Height, opts.Depth)
	p, err := proc.Start(s.log, opts.XvfbPath,
		[]string{s.display, "-screen", "0", screen, "-nolisten", "tcp"})
	if err != nil {
		return fmt.Errorf("starting X server: %w", err)
	}
	s.push("x-server", func() error {
		p.Stop()
		return nil
	})

	sock := filepath.Join(opts.SocketDir, "X"+displayNumber(s.display))
	if err := waitForSocket(sock, p, opts.ReadyTimeout); err != nil {
		return err
	}
	return nil
}

func (s *Session) startWindowManager(opts Options) error {
	p, err := proc.Start(s.log, opts.WindowManager, nil,
		proc.WithEnv("DISPLAY="+s.display))
	if err != nil {
		return fmt.Errorf("starting window manager: %w", err)
	}
	s.push("window-manager", func() error {
		p.Stop()
		return nil
	})
	return nil
}

func (s *Session) startViewer(opts Options) error {
	p, err := proc.Start(s.log, opts.VNCPath,
		[]string{"-display", s.display, "-rfbport", strconv.Itoa(opts.VNCPort),
			"-forever", "-nopw", "-quiet"})
	if err != nil {
		return fmt.Errorf("starting viewer: %w", err)
	}
	s.push("viewer", func() error {
		p.Stop()
		return nil
	})
	return nil
}

func (s *Session) startRecorder(opts Options) error {
	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)
	args := []string{
		"-hide_banner", "-y",
		"-f", "x11grab",
		"-video_size", size,
		"-i", s.display,
		"-r", "15",
		opts.RecordPath,
	}

	pr, pw := io.Pipe()
	eg := &errgroup.Group{}
	eg.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, err := pr.Read(buf)
			if n > 0 {
				s.log.Debug("recorder output", "text", string(buf[:n]))
			}
			if err != nil {
				return nil
			}
		}
	})

	p, err := proc.Start(s.log, opts.FFmpegPath, args, proc.WithStderr(pw))
	if err != nil {
		pw.Close()
		_ = eg.Wait()
		return fmt.Errorf("starting recorder: %w", err)
	}

	s.push("recorder", func() error {
		// Interrupt lets the recorder finalize the container; the
		// supervisor's Stop is only the fallback for a hung encoder.
		if err := p.Signal(unix.SIGINT); err == nil {
			if _, ok := p.Wait(recorderFlushGrace); ok {
				s.log.Debug("recording flushed", "path", opts.RecordPath)
			}
		}
		p.Stop()
		pw.Close()
		return eg.Wait()
	})
	return nil
}

// pickFreeDisplay scans for the first display number with neither a lock
// file nor a socket present.
func pickFreeDisplay(lockDir, sockDir string) (string, error) {
	for n := firstDisplayNum; n < firstDisplayNum+maxDisplayScan; n++ {
		lock := filepath.Join(lockDir, fmt.Sprintf(".X%d-lock", n))
		sock := filepath.Join(sockDir, fmt.Sprintf("X%d", n))
		if exists(lock) || exists(sock) {
			continue
		}
		return fmt.Sprintf(":%d", n), nil
	}
	return "", fmt.Errorf("no free X display in :%d-:%d", firstDisplayNum, firstDisplayNum+maxDisplayScan-1)
}

func waitForSocket(sock string, p *proc.Proc, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if exists(sock) {
			return nil
		}
		if !p.Alive() {
			return fmt.Errorf("X server exited before %s appeared", sock)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("X server socket %s not ready after %v", sock, timeout)
		}
		time.Sleep(readyPollInterval)
	}
}

func displayNumber(display string) string {
	n := display
	if len(n) > 0 && n[0] == ':' {
		n = n[1:]
	}
	return n
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
