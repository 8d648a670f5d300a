// Package cmd provides CLI commands for the conduit binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared flags across commands.
var (
	// ConfigFlag points at the YAML config file driving run.
	ConfigFlag = &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to YAML config file",
		Required: true,
	}

	// GraceFlag bounds how long Shutdown waits for in-flight writes to
	// finish before abandoning them (spec.md §5).
	GraceFlag = &cli.DurationFlag{
		Name:  "grace",
		Usage: "Grace period for in-flight writes during shutdown",
		Value: 10 * time.Second,
	}
)
