package display

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPickFreeDisplaySkipsClaimed(t *testing.T) {
	lockDir := t.TempDir()
	sockDir := t.TempDir()

	// :99 has a lock file, :100 has a live socket; :101 is free.
	touch(t, filepath.Join(lockDir, ".X99-lock"))
	touch(t, filepath.Join(sockDir, "X100"))

	got, err := pickFreeDisplay(lockDir, sockDir)
	if err != nil {
		t.Fatalf("pickFreeDisplay() error: %v", err)
	}
	if got != ":101" {
		t.Errorf("pickFreeDisplay() = %q, want :101", got)
	}
}

func TestPickFreeDisplayExhausted(t *testing.T) {
	lockDir := t.TempDir()
	sockDir := t.TempDir()
	for n := firstDisplayNum; n < firstDisplayNum+maxDisplayScan; n++ {
		touch(t, filepath.Join(lockDir, fmt.Sprintf(".X%d-lock", n)))
	}

	if _, err := pickFreeDisplay(lockDir, sockDir); err == nil {
		t.Fatal("expected error when every display number is claimed")
	}
}

func TestCloseReverseOrder(t *testing.T) {
	s := &Session{log: slog.Default(), display: ":99"}

	var order []string
	for _, name := range []string{"x-server", "window-manager", "viewer", "recorder"} {
		name := name
		s.push(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	want := []string{"recorder", "viewer", "window-manager", "x-server"}
	if len(order) != len(want) {
		t.Fatalf("stopped %d resources, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("teardown[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := &Session{log: slog.Default(), display: ":99"}

	stops := 0
	s.push("x-server", func() error {
		stops++
		return nil
	})

	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if stops != 1 {
		t.Errorf("resource stopped %d times, want 1", stops)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	s := &Session{log: slog.Default(), display: ":99"}

	stopped := false
	s.push("x-server", func() error {
		stopped = true
		return nil
	})
	s.push("recorder", func() error {
		return errors.New("encoder hung")
	})

	err := s.Close()
	if err == nil {
		t.Fatal("Close() = nil, want the recorder error")
	}
	if !stopped {
		t.Error("a failing resource must not block teardown of the rest")
	}
}

func TestDisplayNumber(t *testing.T) {
	if got := displayNumber(":99"); got != "99" {
		t.Errorf("displayNumber(:99) = %q, want 99", got)
	}
	if got := displayNumber("99"); got != "99" {
		t.Errorf("displayNumber(99) = %q, want 99", got)
	}
}
