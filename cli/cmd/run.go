package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/conduit/agent"
	"github.com/justapithecus/conduit/cli/input"
	"github.com/justapithecus/conduit/cli/tui"
	"github.com/justapithecus/conduit/config"
	"github.com/justapithecus/conduit/log"
)

// TUIFlag enables the live dashboard alongside the forwarding loop.
var TUIFlag = &cli.BoolFlag{
	Name:  "tui",
	Usage: "Show a live dashboard of buffer/queue/retry state",
}

// RunCommand returns the run command. run is the only long-lived
// command: it loads a config file, wires the Agent/Output graph, starts
// every BufferedOutput's flusher, and forwards newline-delimited JSON
// from stdin until interrupted.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start the forwarding runtime, reading NDJSON records from stdin",
		UsageText: "conduit run --config conduit.yaml",
		Flags:     []cli.Flag{ConfigFlag, GraceFlag, TUIFlag},
		Action:    runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
	}

	logger := log.NewLogger(log.Context{AgentID: "conduit"})

	built, err := config.Build(cfg, config.DefaultRegistry(), logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build config: %v", err), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, out := range built.Outputs {
		out.Output.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received", nil)
		cancel()
	}()

	root := built.Agents.Root()
	done := make(chan error, 1)
	go func() {
		done <- input.NDJSON(os.Stdin, root, func(raw string, err error) {
			logger.Warn("dropped malformed input line", map[string]any{"error": err.Error()})
		})
	}()

	if c.Bool("tui") {
		program := tea.NewProgram(tui.NewDashboard(dashboardRows(built.Outputs)))
		go func() {
			if _, err := program.Run(); err != nil {
				logger.Error("tui exited with error", map[string]any{"error": err.Error()})
			}
			cancel()
		}()
	}

	select {
	case err := <-done:
		if err != nil {
			logger.Error("stdin read failed", map[string]any{"error": err.Error()})
		}
	case <-ctx.Done():
	}

	return shutdownOutputs(built, c.Duration("grace"), logger)
}

func dashboardRows(outputs []config.NamedOutput) []tui.Row {
	rows := make([]tui.Row, len(outputs))
	for i, o := range outputs {
		rows[i] = tui.Row{Name: o.Plugin, Observer: o.Output}
	}
	return rows
}

func shutdownOutputs(built *config.Built, grace time.Duration, logger *log.Logger) error {
	var firstErr error
	for _, o := range built.Outputs {
		if err := o.Output.Shutdown(grace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		logger.Error("shutdown completed with errors", map[string]any{"error": firstErr.Error()})
		return cli.Exit(firstErr.Error(), 1)
	}
	return nil
}

// ensures Agent satisfies the input.Emitter interface at compile time.
var _ input.Emitter = (*agent.Agent)(nil)
