package mcpdiag

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeStub writes a shell script posing as an MCP server and returns a
// Config that launches it. Stubs read requests line by line from stdin and
// answer with canned NDJSON, mirroring the real wire format.
func writeStub(t *testing.T, script string) Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return Config{
		Command: "sh",
		Args:    []string{path},
		Dir:     dir,
	}
}

// testTimeouts keeps test runs fast; the diagnostic defaults are far too
// generous for stubs running on the same machine.
func testTimeouts() Timeouts {
	return Timeouts{
		Step:   500 * time.Millisecond,
		Settle: 150 * time.Millisecond,
		Grace:  500 * time.Millisecond,
	}
}

// A well-behaved server: answers initialize, then tools/list, then waits for
// stdin to close.
const stubResponder = `read -r line
printf '%s\n' '{"jsonrpc":"2.0","id":1,"result":{}}'
read -r line
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}'
read -r line
exit 0
`

// Crashes on startup before any I/O.
const stubCrasher = `echo "fatal: server failed to start" >&2
exit 1
`

// Accepts one request, answers it, then exits.
const stubOneShot = `read -r line
printf '%s\n' '{"jsonrpc":"2.0","id":1,"result":{}}'
exit 0
`

// Never writes anything; sleeps past any reasonable step timeout.
const stubSleeper = `sleep 3
`

// Replies with a line that is not JSON.
const stubGarbage = `read -r line
printf '%s\n' 'zzz not json zzz'
read -r line
exit 0
`

// Rejects requests sent before initialize with an RPC-level error.
const stubUninitialized = `read -r line
printf '%s\n' '{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"not initialized"}}'
read -r line
exit 0
`
