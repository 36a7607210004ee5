package proc_test

import (
	"bytes"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/akeller/blindpilot/internal/proc"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found in PATH", name)
	}
	return path
}

func TestStartAndWait(t *testing.T) {
	var out bytes.Buffer
	p, err := proc.Start(slog.Default(), lookPath(t, "echo"), []string{"hello"},
		proc.WithStdout(&out))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Stop()

	code, exited := p.Wait(5 * time.Second)
	if !exited {
		t.Fatal("Wait() timed out on a trivial process")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got := strings.TrimSpace(out.String()); got != "hello" {
		t.Errorf("stdout = %q, want hello", got)
	}
}

func TestAliveAndStop(t *testing.T) {
	p, err := proc.Start(slog.Default(), lookPath(t, "sleep"), []string{"60"},
		proc.WithGrace(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !p.Alive() {
		t.Fatal("Alive() = false immediately after Start")
	}
	if p.Handle().PID <= 0 {
		t.Errorf("PID = %d, want a positive pid", p.Handle().PID)
	}

	p.Stop()

	if _, exited := p.Wait(5 * time.Second); !exited {
		t.Fatal("process still running after Stop")
	}
	if p.Alive() {
		t.Error("Alive() = true after Stop reaped the process")
	}
}

func TestStopIdempotent(t *testing.T) {
	p, err := proc.Start(slog.Default(), lookPath(t, "sleep"), []string{"60"},
		proc.WithGrace(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	p.Stop()
	p.Stop()

	if _, exited := p.Wait(5 * time.Second); !exited {
		t.Fatal("process still running after repeated Stop")
	}
}

func TestStopAfterExit(t *testing.T) {
	p, err := proc.Start(slog.Default(), lookPath(t, "true"), nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, exited := p.Wait(5 * time.Second); !exited {
		t.Fatal("Wait() timed out")
	}

	// Must not signal a reaped (possibly recycled) pid.
	p.Stop()
}

func TestWaitTimeout(t *testing.T) {
	p, err := proc.Start(slog.Default(), lookPath(t, "sleep"), []string{"60"},
		proc.WithGrace(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Stop()

	if _, exited := p.Wait(50 * time.Millisecond); exited {
		t.Error("Wait() reported exit for a still-running process")
	}
}

func TestWithEnvAndHandleStartTime(t *testing.T) {
	sh := lookPath(t, "sh")
	var out bytes.Buffer
	before := time.Now()
	p, err := proc.Start(slog.Default(), sh, []string{"-c", "echo $BLINDPILOT_PROBE"},
		proc.WithEnv("BLINDPILOT_PROBE=42"), proc.WithStdout(&out))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Stop()

	if _, exited := p.Wait(5 * time.Second); !exited {
		t.Fatal("Wait() timed out")
	}
	if got := strings.TrimSpace(out.String()); got != "42" {
		t.Errorf("env not passed through, stdout = %q", got)
	}

	h := p.Handle()
	if h.StartedAt.Before(before.Add(-time.Second)) || h.StartedAt.After(time.Now()) {
		t.Errorf("StartedAt = %v, want around %v", h.StartedAt, before)
	}
}

func TestStartFailure(t *testing.T) {
	if _, err := proc.Start(slog.Default(), "/definitely/not/a/binary", nil); err == nil {
		t.Fatal("expected error for a missing binary")
	}
}
