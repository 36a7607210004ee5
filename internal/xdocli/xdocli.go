// Package xdocli provides low-level execution of the X tooling CLI family
// (xdotool, xclip, wmctrl, xdpyinfo) against a specific display. It is
// internal to the blindpilot packages.
package xdocli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Runner executes a single external tool with DISPLAY pointed at one server.
type Runner struct {
	toolPath string
	display  string
}

// New creates a Runner bound to the given tool binary and display
// (e.g. ":99"). An empty display inherits the process environment.
func New(toolPath, display string) *Runner {
	return &Runner{
		toolPath: toolPath,
		display:  display,
	}
}

// Run executes the tool with the given arguments and returns its stdout.
// If the command fails, it returns an *Error containing stderr.
func (r *Runner) Run(args ...string) (string, error) {
	return r.RunContext(context.Background(), args...)
}

// RunContext executes the tool with the given context and arguments.
func (r *Runner) RunContext(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, "", args)
}

// RunInput executes the tool with input fed to stdin. Used for tools that
// consume data rather than arguments (xclip).
func (r *Runner) RunInput(input string, args ...string) (string, error) {
	return r.run(context.Background(), input, args)
}

func (r *Runner) run(ctx context.Context, input string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.toolPath, args...)
	if r.display != "" {
		cmd.Env = append(os.Environ(), "DISPLAY="+r.display)
	}
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		op := r.toolPath
		if len(args) > 0 {
			op = args[0]
		}
		return "", &Error{
			Op:     op,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	return stdout.String(), nil
}

// ToolPath returns the path to the underlying binary.
func (r *Runner) ToolPath() string {
	return r.toolPath
}

// Display returns the display this runner targets.
func (r *Runner) Display() string {
	return r.display
}

// Error represents a tool command failure.
type Error struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

var versionRe = regexp.MustCompile(`\d+(\.\d+)+`)

// Version runs "<tool> --version" and returns the first version-looking
// token (e.g. "3.20160805.1"). Some of the X tools print the version on
// stderr, so both streams are searched.
func Version(toolPath string) (string, error) {
	cmd := exec.Command(toolPath, "--version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// xdpyinfo and friends exit non-zero on --version; the output still
	// carries the version string, so only fail when nothing was printed.
	runErr := cmd.Run()
	combined := stdout.String() + stderr.String()
	if v := versionRe.FindString(combined); v != "" {
		return v, nil
	}
	if runErr != nil {
		return "", fmt.Errorf("%s --version failed: %v (stderr: %s)", toolPath, runErr, strings.TrimSpace(stderr.String()))
	}
	return "", fmt.Errorf("%s --version: no version in output %q", toolPath, strings.TrimSpace(combined))
}

// Resolve determines a tool's binary path by checking, in order:
// 1. the explicitly configured path
// 2. the given environment variable
// 3. $PATH lookup
//
// Returns the resolved path and whether it was explicitly configured.
func Resolve(configured, envVar, name string) (path string, explicit bool, err error) {
	if configured != "" {
		return configured, true, nil
	}
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" {
			return envPath, true, nil
		}
	}
	found, err := exec.LookPath(name)
	if err != nil {
		return "", false, fmt.Errorf("%s not found in PATH", name)
	}
	return found, false, nil
}
