package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/akeller/blindpilot/internal/xdocli"
)

// XdoBackend implements Backend over the xdotool CLI.
type XdoBackend struct {
	x *xdocli.Runner
}

// NewXdoBackend wraps an xdotool runner.
func NewXdoBackend(x *xdocli.Runner) *XdoBackend {
	return &XdoBackend{x: x}
}

// Search lists visible windows whose title matches the pattern.
// xdotool exits non-zero with empty output when nothing matches; that is
// a normal empty result, not an error.
func (b *XdoBackend) Search(pattern string) ([]Handle, error) {
	out, err := b.x.Run("search", "--onlyvisible", "--name", pattern)
	if err != nil {
		var xerr *xdocli.Error
		if errors.As(err, &xerr) && xerr.Stderr == "" {
			return nil, nil
		}
		return nil, err
	}
	return parseHandles(out)
}

// ActiveWindow returns the focused window, or 0 when no window holds
// focus (xdotool fails in that case).
func (b *XdoBackend) ActiveWindow() (Handle, error) {
	out, err := b.x.Run("getactivewindow")
	if err != nil {
		return 0, nil
	}
	hs, err := parseHandles(out)
	if err != nil {
		return 0, err
	}
	if len(hs) == 0 {
		return 0, nil
	}
	return hs[0], nil
}

// Activate gives the window input focus, waiting for the request to
// complete.
func (b *XdoBackend) Activate(h Handle) error {
	_, err := b.x.Run("windowactivate", "--sync", formatHandle(h))
	return err
}

// Title returns the window's current title.
func (b *XdoBackend) Title(h Handle) (string, error) {
	out, err := b.x.Run("getwindowname", formatHandle(h))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func formatHandle(h Handle) string {
	return strconv.FormatUint(uint64(h), 10)
}

func parseHandles(out string) ([]Handle, error) {
	var hs []Handle
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing window id %q: %w", line, err)
		}
		hs = append(hs, Handle(id))
	}
	return hs, nil
}
