// Package diagscript runs txtar-scripted probe sessions against stdio MCP
// servers. The txtar comment holds the script commands; the archive's files
// are extracted into a scratch working directory, so a script can carry its
// own stub server alongside the requests it sends.
package diagscript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/tools/txtar"
	"rsc.io/script"

	"github.com/tmc/mcpdiag"
)

// session tracks the probe state across script commands.
type session struct {
	proc    *mcpdiag.Process
	nextID  int
	timeout time.Duration
	grace   time.Duration
}

func newSession() *session {
	t := mcpdiag.DefaultTimeouts()
	return &session{
		nextID:  1,
		timeout: t.Step,
		grace:   t.Grace,
	}
}

// RunFile executes one txtar probe script. Output suitable for human
// inspection is written to output; a nil error means every command in the
// script passed.
func RunFile(ctx context.Context, filename string, output io.Writer) error {
	a, err := txtar.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}

	workdir, err := os.MkdirTemp("", "mcpdiag-script-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	eng := script.NewEngine()
	sess := newSession()
	defer func() {
		if sess.proc != nil {
			sess.proc.Terminate(sess.grace)
		}
	}()

	for name, cmd := range probeCommands(sess) {
		eng.Cmds[name] = cmd
	}
	for name, cmd := range script.DefaultCmds() {
		eng.Cmds[name] = cmd
	}

	s, err := script.NewState(ctx, workdir, os.Environ())
	if err != nil {
		return err
	}
	if err := s.ExtractFiles(a); err != nil {
		return err
	}

	return eng.Execute(s, filename, bufio.NewReader(bytes.NewReader(a.Comment)), output)
}

// probeCommands returns the probe-specific script commands.
func probeCommands(sess *session) map[string]script.Cmd {
	return map[string]script.Cmd{
		"probe-start": script.Command(script.CmdUsage{
			Summary: "launch a stdio MCP server for subsequent probe-send commands",
			Args:    "command [args...]",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return sess.handleStart(s, args...)
		}),
		"probe-send": script.Command(script.CmdUsage{
			Summary: "send one JSON-RPC request and read one response line",
			Args:    "method [params]",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return sess.handleSend(s, args...)
		}),
		"probe-timeout": script.Command(script.CmdUsage{
			Summary: "set the per-request response timeout",
			Args:    "duration",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return sess.handleTimeout(s, args...)
		}),
		"probe-stop": script.Command(script.CmdUsage{
			Summary: "terminate the server and report its exit code and stderr",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return sess.handleStop(s, args...)
		}),
	}
}

func (sess *session) handleStart(s *script.State, args ...string) (script.WaitFunc, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: probe-start <command> [args...]")
	}

	// One server per session; starting again replaces the old one.
	if sess.proc != nil {
		sess.proc.Terminate(sess.grace)
		sess.proc = nil
	}

	proc, err := mcpdiag.Launch(s.Context(), mcpdiag.Config{
		Command: args[0],
		Args:    args[1:],
		Dir:     s.Getwd(),
	})
	if err != nil {
		return nil, err
	}
	sess.proc = proc
	sess.nextID = 1

	return func(*script.State) (string, string, error) {
		return fmt.Sprintf("started %s\n", strings.Join(args, " ")), "", nil
	}, nil
}

func (sess *session) handleSend(s *script.State, args ...string) (script.WaitFunc, error) {
	if sess.proc == nil {
		return nil, fmt.Errorf("no server running, use probe-start first")
	}
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: probe-send <method> [params]")
	}

	method := args[0]
	params := json.RawMessage(`{}`)
	if len(args) > 1 {
		params = json.RawMessage(args[1])
	}

	if sess.proc.Exited() {
		code, _ := sess.proc.ExitCode()
		return nil, fmt.Errorf("server already exited with code %d", code)
	}

	req := mcpdiag.NewRequest(sess.nextID, method, params)
	sess.nextID++
	if err := mcpdiag.WriteRequest(sess.proc, req); err != nil {
		return nil, err
	}

	resp, err := mcpdiag.ReadResponse(s.Context(), sess.proc, sess.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	pretty, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return func(*script.State) (string, string, error) {
		return string(pretty) + "\n", "", nil
	}, nil
}

func (sess *session) handleTimeout(s *script.State, args ...string) (script.WaitFunc, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: probe-timeout <duration>")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return nil, fmt.Errorf("parsing timeout: %w", err)
	}
	sess.timeout = d
	return nil, nil
}

func (sess *session) handleStop(s *script.State, args ...string) (script.WaitFunc, error) {
	if sess.proc == nil {
		return nil, fmt.Errorf("no server running")
	}

	code := sess.proc.Terminate(sess.grace)
	stderr := sess.proc.Stderr()
	sess.proc = nil

	return func(*script.State) (string, string, error) {
		return fmt.Sprintf("exit=%d\n", code), stderr, nil
	}, nil
}
