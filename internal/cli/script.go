package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmc/mcpdiag/internal/diagscript"
)

var scriptFailFast bool

var scriptCmd = &cobra.Command{
	Use:   "script <file.txtar...>",
	Short: "Run custom txtar probe scripts",
	Long: `Run custom probe scripts defined as txtar archives.

The archive comment is the script: probe-start launches a server,
probe-send exchanges one request for one response, probe-timeout adjusts
the per-request wait, and probe-stop reports the exit code and captured
stderr. The archive's files are extracted into a scratch directory that
becomes the server's working directory, so scripts can ship fixtures or a
stub server.

Arguments may be files, globs, or directories (searched for *.txtar).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScriptCmd,
}

func runScriptCmd(cmd *cobra.Command, args []string) error {
	var failed int
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			// Not a glob match; try as a directory of scripts.
			if info, err := os.Stat(pattern); err == nil && info.IsDir() {
				matches, _ = filepath.Glob(filepath.Join(pattern, "*.txtar"))
			}
		}
		if len(matches) == 0 {
			return fmt.Errorf("no scripts match %q", pattern)
		}
		for _, match := range matches {
			fmt.Printf("=== RUN   %s\n", match)
			if err := diagscript.RunFile(cmd.Context(), match, os.Stdout); err != nil {
				failed++
				fmt.Printf("--- FAIL: %s\n%s\n", match, indent(err.Error()))
				if scriptFailFast {
					return fmt.Errorf("%d script(s) failed", failed)
				}
				continue
			}
			fmt.Printf("--- PASS: %s\n", match)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d script(s) failed", failed)
	}
	return nil
}

func indent(s string) string {
	return "\t" + strings.ReplaceAll(s, "\n", "\n\t")
}

func init() {
	scriptCmd.Flags().BoolVarP(&scriptFailFast, "fail-fast", "f", false, "stop on the first failing script")
	RootCmd.AddCommand(scriptCmd)
}
