package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/akeller/blindpilot/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbosity int
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "blindpilot",
	Short: "Blind automation of GUI applications through synthetic input",
	Long: "Blindpilot drives a GUI application that exposes no scripting API,\n" +
		"using synthetic keyboard input and observing only window titles,\n" +
		"produced files and process liveness.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		switch {
		case verbosity == 1:
			level = slog.LevelInfo
		case verbosity >= 2:
			level = slog.LevelDebug
		}
		logging.Init(level, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
