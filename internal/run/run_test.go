package run_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/akeller/blindpilot/internal/config"
	"github.com/akeller/blindpilot/internal/run"
	"github.com/akeller/blindpilot/internal/sandbox"
)

func TestCheckExit(t *testing.T) {
	cases := []struct {
		findings int
		want     int
	}{
		{0, 0},
		{-3, 0},
		{1, 255},
		{2, 254},
		{5, 251},
	}
	for _, c := range cases {
		if got := run.CheckExit(c.findings); got != c.want {
			t.Errorf("CheckExit(%d) = %d, want %d", c.findings, got, c.want)
		}
	}
}

func TestExecuteMissingInput(t *testing.T) {
	cfg := &config.Scenario{}
	cfg.App.Command = "pcbnew"
	cfg.Startup.Target = "Pcbnew"
	cfg.Input.Path = filepath.Join(t.TempDir(), "absent.kicad_pcb")

	code, err := run.Execute(context.Background(), cfg, run.Options{})
	if code != run.ExitNoInput {
		t.Errorf("code = %d, want ExitNoInput (%d)", code, run.ExitNoInput)
	}
	if err == nil {
		t.Error("expected an error describing the missing input")
	}
}

func TestExecuteWrongExtension(t *testing.T) {
	input := filepath.Join(t.TempDir(), "board.txt")
	if err := os.WriteFile(input, []byte("not a board"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Scenario{}
	cfg.App.Command = "pcbnew"
	cfg.Startup.Target = "Pcbnew"
	cfg.Input.Path = input
	cfg.Input.Extension = ".kicad_pcb"

	code, err := run.Execute(context.Background(), cfg, run.Options{})
	if code != run.ExitWrongExt {
		t.Errorf("code = %d, want ExitWrongExt (%d)", code, run.ExitWrongExt)
	}
	if err == nil {
		t.Error("expected an error naming the required extension")
	}
}

func TestExecuteLeftoverBackupAborts(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "pcbnew")
	if err := os.WriteFile(live, []byte("user settings"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(live+sandbox.BackupSuffix, []byte("from a crashed run"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Scenario{}
	cfg.App.Command = "pcbnew"
	cfg.Startup.Target = "Pcbnew"
	cfg.Sandbox = []config.SandboxFile{{Path: live, Content: "synthetic"}}

	code, err := run.Execute(context.Background(), cfg, run.Options{})
	if code != run.ExitConfigBackup {
		t.Errorf("code = %d, want ExitConfigBackup (%d)", code, run.ExitConfigBackup)
	}
	if err == nil {
		t.Error("expected an error about the leftover backup")
	}

	// The abort must leave both files exactly as it found them.
	data, err := os.ReadFile(live)
	if err != nil || string(data) != "user settings" {
		t.Errorf("live config = %q, %v; want untouched", data, err)
	}
	data, err = os.ReadFile(live + sandbox.BackupSuffix)
	if err != nil || string(data) != "from a crashed run" {
		t.Errorf("backup = %q, %v; want untouched", data, err)
	}
}

func TestExecuteCanceledBeforeLaunch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Scenario{}
	cfg.App.Command = "pcbnew"
	cfg.Startup.Target = "Pcbnew"

	code, err := run.Execute(ctx, cfg, run.Options{})
	if code != run.ExitInterrupted {
		t.Errorf("code = %d, want ExitInterrupted (%d)", code, run.ExitInterrupted)
	}
	if err == nil {
		t.Error("expected the cancellation error")
	}
}

func TestExecuteRestoresSandboxOnEarlyExit(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "pcbnew")
	if err := os.WriteFile(live, []byte("user settings"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Scenario{}
	cfg.App.Command = "pcbnew"
	cfg.Startup.Target = "Pcbnew"
	cfg.Sandbox = []config.SandboxFile{{Path: live, Content: "synthetic"}}

	code, _ := run.Execute(ctx, cfg, run.Options{})
	if code != run.ExitInterrupted {
		t.Fatalf("code = %d, want ExitInterrupted (%d)", code, run.ExitInterrupted)
	}

	// The interrupted run still unwinds its sandbox.
	data, err := os.ReadFile(live)
	if err != nil || string(data) != "user settings" {
		t.Errorf("live config = %q, %v; want restored original", data, err)
	}
	if _, err := os.Stat(live + sandbox.BackupSuffix); !os.IsNotExist(err) {
		t.Error("backup left behind after the interrupted run")
	}
}
