// Package config loads the YAML scenario that describes one automation
// run: the driven application, its input document, the display stack, the
// startup dialogs, the key script and the expected artifact. Every poll
// interval and timeout is configuration, not a call-site constant.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "200ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// App names the driven application.
type App struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Workdir string   `yaml:"workdir"`
}

// Input is the document the application opens.
type Input struct {
	Path string `yaml:"path"`
	// Extension, when set, is required of Path (the application cannot
	// load files without it).
	Extension string `yaml:"extension"`
}

// Display configures the off-screen rendering stack.
type Display struct {
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	Depth         int    `yaml:"depth"`
	WindowManager string `yaml:"window_manager"`
	VNC           bool   `yaml:"vnc"`
	Record        string `yaml:"record"`
}

// AlternateDialog describes a dialog that may appear instead of the
// startup target, and how to react to it.
type AlternateDialog struct {
	Kind    string   `yaml:"kind"`
	Pattern string   `yaml:"pattern"`
	Fatal   bool     `yaml:"fatal"`
	Keys    []string `yaml:"keys"`
}

// Startup configures the wait for the application's ready state.
type Startup struct {
	Target       string            `yaml:"target"`
	Timeout      Duration          `yaml:"timeout"`
	RetryTimeout Duration          `yaml:"retry_timeout"`
	Alternates   []AlternateDialog `yaml:"alternates"`
}

// Waits holds the polling parameters shared by the wait primitives.
type Waits struct {
	PollInterval      Duration `yaml:"poll_interval"`
	ArtifactTolerance Duration `yaml:"artifact_tolerance"`
}

// SandboxFile is one config file to replace with deterministic content
// for the duration of the run.
type SandboxFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// Artifact is the file whose appearance signals completion.
type Artifact struct {
	Path    string   `yaml:"path"`
	Timeout Duration `yaml:"timeout"`
}

// Scenario is one complete automation run description.
type Scenario struct {
	App      App           `yaml:"app"`
	Input    Input         `yaml:"input"`
	Display  Display       `yaml:"display"`
	Startup  Startup       `yaml:"startup"`
	Waits    Waits         `yaml:"waits"`
	Sandbox  []SandboxFile `yaml:"sandbox"`
	Guard    []string      `yaml:"guard"`
	Script   []string      `yaml:"script"`
	Quit     []string      `yaml:"quit"`
	Artifact Artifact      `yaml:"artifact"`
}

const (
	defaultStartupTimeout    = 30 * time.Second
	defaultRetryTimeout      = 10 * time.Second
	defaultPollInterval      = 200 * time.Millisecond
	defaultArtifactTolerance = 2 * time.Second
	defaultArtifactTimeout   = 60 * time.Second
)

// Load reads, parses and validates a scenario file. Unknown fields are
// rejected so a typo fails the run instead of silently using a default.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates scenario bytes.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.expandPaths()
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Startup.Timeout <= 0 {
		s.Startup.Timeout = Duration(defaultStartupTimeout)
	}
	if s.Startup.RetryTimeout <= 0 {
		s.Startup.RetryTimeout = Duration(defaultRetryTimeout)
	}
	if s.Waits.PollInterval <= 0 {
		s.Waits.PollInterval = Duration(defaultPollInterval)
	}
	if s.Waits.ArtifactTolerance <= 0 {
		s.Waits.ArtifactTolerance = Duration(defaultArtifactTolerance)
	}
	if s.Artifact.Path != "" && s.Artifact.Timeout <= 0 {
		s.Artifact.Timeout = Duration(defaultArtifactTimeout)
	}
}

func (s *Scenario) validate() error {
	if s.App.Command == "" {
		return fmt.Errorf("scenario: app.command is required")
	}
	if s.Startup.Target == "" {
		return fmt.Errorf("scenario: startup.target is required")
	}
	for i, alt := range s.Startup.Alternates {
		if alt.Kind == "" {
			return fmt.Errorf("scenario: startup.alternates[%d].kind is required", i)
		}
		if alt.Pattern == "" {
			return fmt.Errorf("scenario: startup.alternates[%d].pattern is required", i)
		}
		if !alt.Fatal && len(alt.Keys) == 0 {
			return fmt.Errorf("scenario: startup.alternates[%d] (%s) needs keys or fatal: true", i, alt.Kind)
		}
	}
	for i, sb := range s.Sandbox {
		if sb.Path == "" {
			return fmt.Errorf("scenario: sandbox[%d].path is required", i)
		}
	}
	return nil
}

func (s *Scenario) expandPaths() {
	s.Input.Path = expandHome(s.Input.Path)
	s.Artifact.Path = expandHome(s.Artifact.Path)
	s.Display.Record = expandHome(s.Display.Record)
	for i := range s.Sandbox {
		s.Sandbox[i].Path = expandHome(s.Sandbox[i].Path)
	}
	for i := range s.Guard {
		s.Guard[i] = expandHome(s.Guard[i])
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
