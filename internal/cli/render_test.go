package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tmc/mcpdiag"
)

func TestRenderReport(t *testing.T) {
	report := &mcpdiag.Report{
		RunID:  "test-run",
		Script: "handshake-first",
		Outcomes: []mcpdiag.Outcome{
			{
				Step:   0,
				Method: "initialize",
				Kind:   mcpdiag.OutcomeSuccess,
				Response: &mcpdiag.Response{
					JSONRPC: "2.0",
					ID:      1,
					Result:  json.RawMessage(`{}`),
				},
				Elapsed: 5 * time.Millisecond,
			},
			{
				Step:     1,
				Method:   "tools/list",
				Kind:     mcpdiag.OutcomeProcessExited,
				ExitCode: 1,
			},
		},
		ExitCode: 1,
		Stderr:   "fatal: something broke\n",
	}

	out := renderReport(report)

	for _, want := range []string{
		"handshake-first",
		"initialize",
		"tools/list",
		string(mcpdiag.OutcomeSuccess),
		string(mcpdiag.OutcomeProcessExited),
		"exit code 1",
		"something broke",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReportRPCError(t *testing.T) {
	report := &mcpdiag.Report{
		Script: "handshake-omitted",
		Outcomes: []mcpdiag.Outcome{
			{
				Step:   0,
				Method: "tools/list",
				Kind:   mcpdiag.OutcomeSuccess,
				Response: &mcpdiag.Response{
					JSONRPC: "2.0",
					ID:      1,
					Error:   &mcpdiag.RPCError{Code: -32002, Message: "not initialized"},
				},
			},
		},
	}

	out := renderReport(report)
	if !strings.Contains(out, "not initialized") {
		t.Errorf("rendered report missing the rpc error message:\n%s", out)
	}
}

func TestCompact(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := compact(long); len(got) > 90 {
		t.Errorf("compact left %d characters", len(got))
	}
	if got := compact("short"); got != "short" {
		t.Errorf("compact mangled a short string: %q", got)
	}
}
