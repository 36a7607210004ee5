package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/akeller/blindpilot/internal/config"
)

const fullScenario = `
app:
  command: pcbnew
  args: ["--no-splash"]
input:
  path: boards/x.kicad_pcb
  extension: .kicad_pcb
display:
  width: 800
  height: 600
  depth: 24
startup:
  target: "Pcbnew .*"
  timeout: 25s
  retry_timeout: 5s
  alternates:
    - kind: already-running
      pattern: Confirmation
      keys: [Return]
    - kind: application-error
      pattern: Error
      fatal: true
waits:
  poll_interval: 150ms
  artifact_tolerance: 3s
sandbox:
  - path: cfg/pcbnew
    content: "canvas_type=1\n"
guard:
  - boards/x.kicad_pcb
script: [ctrl+i, Return]
quit: [ctrl+q]
artifact:
  path: out/report.rpt
  timeout: 90s
`

func TestParseFullScenario(t *testing.T) {
	s, err := config.Parse([]byte(fullScenario))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if s.App.Command != "pcbnew" {
		t.Errorf("App.Command = %q, want pcbnew", s.App.Command)
	}
	if got := s.Startup.Timeout.Std(); got != 25*time.Second {
		t.Errorf("Startup.Timeout = %v, want 25s", got)
	}
	if got := s.Waits.PollInterval.Std(); got != 150*time.Millisecond {
		t.Errorf("Waits.PollInterval = %v, want 150ms", got)
	}
	if got := s.Artifact.Timeout.Std(); got != 90*time.Second {
		t.Errorf("Artifact.Timeout = %v, want 90s", got)
	}

	wantAlts := []config.AlternateDialog{
		{Kind: "already-running", Pattern: "Confirmation", Keys: []string{"Return"}},
		{Kind: "application-error", Pattern: "Error", Fatal: true},
	}
	if diff := cmp.Diff(wantAlts, s.Startup.Alternates); diff != "" {
		t.Errorf("alternates mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	s, err := config.Parse([]byte("app:\n  command: pcbnew\nstartup:\n  target: Pcbnew\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := s.Startup.Timeout.Std(); got != 30*time.Second {
		t.Errorf("default startup timeout = %v, want 30s", got)
	}
	if got := s.Startup.RetryTimeout.Std(); got != 10*time.Second {
		t.Errorf("default retry timeout = %v, want 10s", got)
	}
	if got := s.Waits.PollInterval.Std(); got != 200*time.Millisecond {
		t.Errorf("default poll interval = %v, want 200ms", got)
	}
	if got := s.Waits.ArtifactTolerance.Std(); got != 2*time.Second {
		t.Errorf("default artifact tolerance = %v, want 2s", got)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := config.Parse([]byte("app:\n  command: pcbnew\n  comand_typo: x\nstartup:\n  target: Pcbnew\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := config.Parse([]byte("app:\n  command: pcbnew\nstartup:\n  target: Pcbnew\n  timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected invalid duration error, got %v", err)
	}
}

func TestValidateMissingCommand(t *testing.T) {
	_, err := config.Parse([]byte("startup:\n  target: Pcbnew\n"))
	if err == nil || !strings.Contains(err.Error(), "app.command") {
		t.Fatalf("expected app.command error, got %v", err)
	}
}

func TestValidateMissingTarget(t *testing.T) {
	_, err := config.Parse([]byte("app:\n  command: pcbnew\n"))
	if err == nil || !strings.Contains(err.Error(), "startup.target") {
		t.Fatalf("expected startup.target error, got %v", err)
	}
}

func TestValidateAlternateNeedsKeysOrFatal(t *testing.T) {
	doc := `
app:
  command: pcbnew
startup:
  target: Pcbnew
  alternates:
    - kind: stuck
      pattern: Stuck
`
	_, err := config.Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "needs keys or fatal") {
		t.Fatalf("expected keys-or-fatal error, got %v", err)
	}
}
