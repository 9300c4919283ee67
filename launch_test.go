package mcpdiag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := Launch(context.Background(), Config{
		Command: "/nonexistent/mcp-server",
		Dir:     t.TempDir(),
	})
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want *LaunchError", err)
	}
}

func TestLaunchRequiresWorkdir(t *testing.T) {
	_, err := Launch(context.Background(), Config{Command: "sh"})
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want *LaunchError", err)
	}
	if !strings.Contains(err.Error(), "working directory") {
		t.Errorf("error %q does not mention the working directory", err)
	}
}

func TestSettleDetectsImmediateCrash(t *testing.T) {
	cfg := writeStub(t, stubCrasher)
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	if !p.Settle(2 * time.Second) {
		t.Fatal("Settle did not observe the crash")
	}
	code, ok := p.ExitCode()
	if !ok || code != 1 {
		t.Errorf("got exit code %d (reaped=%v), want 1", code, ok)
	}
	if got := p.Stderr(); !strings.Contains(got, "failed to start") {
		t.Errorf("stderr %q missing crash message", got)
	}
}

func TestSettleReturnsFalseForLiveProcess(t *testing.T) {
	cfg := writeStub(t, stubResponder)
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	if p.Settle(100 * time.Millisecond) {
		t.Fatal("Settle reported exit for a live process")
	}
	if p.Exited() {
		t.Fatal("Exited reported true for a live process")
	}
}

func TestTerminateGraceful(t *testing.T) {
	// Exits 0 on end of input or on the terminate signal, the way a
	// well-behaved server shuts down inside the grace period.
	cfg := writeStub(t, "trap 'exit 0' TERM\nwhile read -r l; do :; done\nexit 0\n")
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	code := p.Terminate(2 * time.Second)
	if code != 0 {
		t.Errorf("got exit code %d, want 0", code)
	}
	if !p.Exited() {
		t.Error("process not marked exited after Terminate")
	}
}

func TestTerminateKillsUnresponsive(t *testing.T) {
	cfg := writeStub(t, "trap '' TERM\nsleep 5\n")
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	code := p.Terminate(300 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Terminate took %v, should escalate to kill after the grace period", elapsed)
	}
	if code != -1 {
		t.Errorf("got exit code %d, want -1 for a killed process", code)
	}
}
