package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Version is the canonical conduit version (lockstep across all commands).
const Version = "0.1.0"

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("conduit %s (commit: %s)\n", Version, commit)
			return nil
		},
	}
}
