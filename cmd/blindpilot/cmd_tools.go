package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akeller/blindpilot/internal/xdocli"
)

// toolProbe describes one external binary the engine shells out to.
type toolProbe struct {
	name     string
	envVar   string
	required bool
}

var probes = []toolProbe{
	{name: "xdotool", envVar: "BLINDPILOT_XDOTOOL", required: true},
	{name: "Xvfb", envVar: "BLINDPILOT_XVFB", required: true},
	{name: "xclip", envVar: "BLINDPILOT_XCLIP"},
	{name: "ffmpeg", envVar: "BLINDPILOT_FFMPEG"},
	{name: "x11vnc", envVar: "BLINDPILOT_X11VNC"},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Probe the external X tooling the engine depends on",
	Run: func(cmd *cobra.Command, args []string) {
		missing := false
		for _, p := range probes {
			path, _, err := xdocli.Resolve("", p.envVar, p.name)
			if err != nil {
				mark := "optional"
				if p.required {
					mark = "REQUIRED"
					missing = true
				}
				fmt.Printf("%-10s missing (%s)\n", p.name, mark)
				continue
			}
			version, err := xdocli.Version(path)
			if err != nil {
				version = "unknown version"
			}
			fmt.Printf("%-10s %s (%s)\n", p.name, version, path)
		}
		if missing {
			os.Exit(1)
		}
	},
}
