package mcpdiag

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxLineSize bounds a single response line read from the server.
const maxLineSize = 1024 * 1024

// Config describes how to launch the target server. The working directory is
// an explicit input; it is never inferred from the harness's own environment.
type Config struct {
	// Command is the executable that starts the server.
	Command string
	// Args are passed verbatim. A stdio server is conventionally started
	// with "--transport stdio".
	Args []string
	// Dir is the working directory for the server process. Required.
	Dir string
	// Env is the full environment in KEY=VALUE form. A nil Env inherits
	// the harness environment.
	Env []string
}

// LaunchError reports that the server process could not be started at all.
// It is the only failure that aborts a probe run before any steps are
// attempted.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Process is a launched server with its three standard streams attached.
// It is owned by a single probe run; none of its methods are intended for
// concurrent use except the liveness accessors.
type Process struct {
	cmd *exec.Cmd
	log *slog.Logger

	stdinMu   sync.Mutex
	stdin     io.WriteCloser
	stdinOnce sync.Once

	// lines carries newline-delimited server output; closed on EOF.
	lines chan string

	errMu  sync.Mutex
	errBuf strings.Builder

	// done is closed once the process has been reaped.
	done     chan struct{}
	exitCode int
}

// LaunchOption configures a Process at launch time.
type LaunchOption func(*Process)

// WithLogger routes frame and lifecycle logging to the given logger.
func WithLogger(log *slog.Logger) LaunchOption {
	return func(p *Process) {
		p.log = log
	}
}

// Launch starts the server described by cfg with all three standard streams
// redirected to pipes. It returns a *LaunchError if the process cannot be
// started (missing executable, bad working directory, permissions).
func Launch(ctx context.Context, cfg Config, opts ...LaunchOption) (*Process, error) {
	if cfg.Command == "" {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("command required")}
	}
	if cfg.Dir == "" {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("working directory required")}
	}

	p := &Process{
		log:   slog.Default(),
		lines: make(chan string, 16),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if cfg.Env != nil {
		cmd.Env = cfg.Env
	}
	p.cmd = cmd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	p.stdin = stdin

	p.log.Debug("starting server", "command", cfg.Command, "args", cfg.Args, "dir", cfg.Dir)
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: err}
	}

	go p.readLines(stdout)
	go p.collectStderr(stderr)
	go func() {
		err := cmd.Wait()
		p.exitCode = cmd.ProcessState.ExitCode()
		p.log.Debug("server process exited", "code", p.exitCode, "err", err)
		close(p.done)
	}()

	return p, nil
}

// readLines feeds server stdout to the lines channel one newline-terminated
// line at a time. The channel is closed when the stream ends. The goroutine
// may outlive an abandoned read; it exits on its own once the pipe closes.
func (p *Process) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		p.log.Debug("server stdout", "line", line)
		p.lines <- line
	}
	close(p.lines)
}

// collectStderr buffers everything the server writes to its error stream.
// Server-side diagnostic logging commonly appears there even on success.
func (p *Process) collectStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		p.log.Debug("server stderr", "line", line)
		p.errMu.Lock()
		p.errBuf.WriteString(line)
		p.errBuf.WriteByte('\n')
		p.errMu.Unlock()
	}
}

// Exited reports whether the process has already terminated, without
// blocking on any stream.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the process exit code once it has been reaped.
// A process killed by a signal reports -1.
func (p *Process) ExitCode() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Settle waits up to d for the process to crash on startup. It reports
// whether the process exited within the window. Servers that crash before
// any I/O are caught here instead of burning a full read timeout.
func (p *Process) Settle(d time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Stderr returns everything captured from the error stream so far.
func (p *Process) Stderr() string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.errBuf.String()
}

// DrainStdout collects whatever output lines were already buffered when the
// process exited. It stops at end of stream, or after a short safety window
// if the stream has not closed yet.
func (p *Process) DrainStdout() []string {
	var drained []string
	deadline := time.After(time.Second)
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return drained
			}
			drained = append(drained, line)
		case <-deadline:
			return drained
		}
	}
}

// CloseStdin closes the server's input stream. Safe to call more than once.
func (p *Process) CloseStdin() {
	p.stdinOnce.Do(func() {
		p.stdinMu.Lock()
		defer p.stdinMu.Unlock()
		if err := p.stdin.Close(); err != nil {
			p.log.Debug("close stdin", "err", err)
		}
	})
}

// Terminate tears the process down: input stream closed, then a termination
// signal, then up to grace for a voluntary exit, then a forced kill. It
// returns the final exit code. Terminate is idempotent in effect; calling it
// on an already-exited process just reaps the recorded code.
func (p *Process) Terminate(grace time.Duration) int {
	p.CloseStdin()

	if !p.Exited() {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.log.Debug("terminate signal", "err", err)
		}
		select {
		case <-p.done:
		case <-time.After(grace):
			p.log.Debug("grace period elapsed, killing server")
			if err := p.cmd.Process.Kill(); err != nil {
				p.log.Debug("kill", "err", err)
			}
			<-p.done
		}
	}
	return p.exitCode
}
