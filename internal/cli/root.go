package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmc/mcpdiag"
)

var verbose bool

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "mcpdiag",
	Version: mcpdiag.Version,
	Short:   "Diagnose a stdio MCP server process",
	Long: `mcpdiag launches a stdio MCP server process, exchanges newline-delimited
JSON-RPC requests with it, and reports what happened step by step: did the
server start, did it answer the initialize handshake, how does it treat
requests sent before the handshake, and does it expose a tool catalog.

Every failure is recorded and reported; only a server that cannot be
launched at all aborts the run.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging, including raw frames")
}
