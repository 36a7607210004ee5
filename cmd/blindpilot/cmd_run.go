package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akeller/blindpilot/internal/config"
	"github.com/akeller/blindpilot/internal/run"
)

var (
	stepMode    bool
	recordPath  string
	xdotoolPath string
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Execute one automation scenario",
	Long: "Run loads a scenario, provisions a virtual display, launches the\n" +
		"driven application, plays the key script and waits for the expected\n" +
		"artifact. The exit status encodes the outcome; see the command help\n" +
		"for the code table.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(doRun(args[0]))
	},
}

func init() {
	runCmd.Flags().BoolVar(&stepMode, "step", false, "confirm every key chord interactively (diagnosis aid)")
	runCmd.Flags().StringVar(&recordPath, "record", "", "record the run to this video file")
	runCmd.Flags().StringVar(&xdotoolPath, "xdotool", "", "path to the xdotool binary")
}

func doRun(scenarioPath string) int {
	cfg, err := config.Load(scenarioPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return run.ExitUsage
	}
	if recordPath != "" {
		cfg.Display.Record = recordPath
	}

	// Convert termination signals into context cancellation so the
	// sandbox and guard restores registered inside Execute still run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := run.Options{
		Step:        stepMode,
		StepIn:      os.Stdin,
		StepOut:     os.Stderr,
		XdotoolPath: xdotoolPath,
	}
	code, err := run.Execute(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
	}
	return code
}
