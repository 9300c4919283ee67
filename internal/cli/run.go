package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmc/mcpdiag"
)

// Flag variables for the run command
var (
	runConfig  string
	runWorkdir string
	runEnv     []string
	runScript  string
	runTimeout time.Duration
	runSettle  time.Duration
	runGrace   time.Duration
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run the built-in diagnostic scripts against a server",
	Long: `Run the built-in diagnostic scripts against a stdio MCP server.

The server command comes from the arguments after --, or from a YAML config
file given with --config. Two scripts run by default: handshake-first sends
initialize then tools/list; handshake-omitted sends tools/list with no prior
handshake to see how the server treats out-of-order requests.

The working directory for the server is never inferred; set it with
--workdir or in the config file.

Examples:
  mcpdiag run --workdir /srv/server -- python -m main --transport stdio
  mcpdiag run --config probe.yaml --script handshake-omitted
  MCPDIAG_TIMEOUT=30s mcpdiag run --config probe.yaml --json`,
	RunE: runRunCmd,
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	var file *fileConfig
	if runConfig != "" {
		var err error
		file, err = loadFileConfig(runConfig)
		if err != nil {
			return err
		}
	}

	cfg, err := buildProcessConfig(file, args)
	if err != nil {
		return err
	}
	timeouts := resolveTimeouts(file, runTimeout, runSettle, runGrace)

	scripts, err := selectScripts(runScript)
	if err != nil {
		return err
	}

	prober := mcpdiag.NewProber(cfg, mcpdiag.WithTimeouts(timeouts))

	var reports []*mcpdiag.Report
	for _, script := range scripts {
		report, err := prober.Run(cmd.Context(), script)
		if err != nil {
			// Launch failures are fatal; nothing was probed.
			return err
		}
		reports = append(reports, report)
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, report := range reports {
		fmt.Fprintln(os.Stdout, renderReport(report))
	}
	return nil
}

// buildProcessConfig merges the config file and command line into the
// launcher configuration. Flags win over file values.
func buildProcessConfig(file *fileConfig, args []string) (mcpdiag.Config, error) {
	cfg := mcpdiag.Config{}
	var fileEnv map[string]string
	if file != nil {
		cfg.Command = file.Command
		cfg.Args = file.Args
		cfg.Dir = file.Workdir
		fileEnv = file.Env
	}
	if len(args) > 0 {
		cfg.Command = args[0]
		cfg.Args = args[1:]
	}
	if runWorkdir != "" {
		cfg.Dir = runWorkdir
	}
	if cfg.Command == "" {
		return cfg, fmt.Errorf("no server command: pass one after -- or set it in the config file")
	}
	if cfg.Dir == "" {
		return cfg, fmt.Errorf("no working directory: set --workdir or workdir in the config file")
	}
	cfg.Env = buildEnv(fileEnv, runEnv)
	return cfg, nil
}

func selectScripts(name string) ([]mcpdiag.Script, error) {
	switch name {
	case "":
		return mcpdiag.BuiltinScripts(), nil
	case "handshake-first":
		return []mcpdiag.Script{mcpdiag.HandshakeFirst()}, nil
	case "handshake-omitted":
		return []mcpdiag.Script{mcpdiag.HandshakeOmitted()}, nil
	default:
		return nil, fmt.Errorf("unknown script %q (want handshake-first or handshake-omitted)", name)
	}
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "YAML config file with command, workdir, env and timeouts")
	runCmd.Flags().StringVarP(&runWorkdir, "workdir", "w", "", "working directory for the server process")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "extra KEY=VAL for the server environment (repeatable)")
	runCmd.Flags().StringVarP(&runScript, "script", "s", "", "run only one built-in script (handshake-first, handshake-omitted)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-step response timeout (default 10s)")
	runCmd.Flags().DurationVar(&runSettle, "settle", 0, "post-launch crash detection window (default 1s)")
	runCmd.Flags().DurationVar(&runGrace, "grace", 0, "terminate-to-kill grace period (default 2s)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit reports as JSON")
	RootCmd.AddCommand(runCmd)
}
