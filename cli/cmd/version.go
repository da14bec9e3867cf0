package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Version is the release version, overridden via ldflags at build time.
var Version = "0.1.0"

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("gitbrag %s (commit: %s)\n", Version, commit)
			return nil
		},
	}
}
