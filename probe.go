package mcpdiag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
)

// Version identifies this harness to probed servers.
const Version = "0.1.0"

// Run lifecycle states.
const (
	stateNotStarted   = "not_started"
	stateLaunched     = "launched"
	stateStepPending  = "step_pending"
	stateStepComplete = "step_complete"
	stateTerminating  = "terminating"
	stateTerminated   = "terminated"
)

// Run lifecycle events.
const (
	eventLaunch    = "launch"
	eventSend      = "send"
	eventRecord    = "record"
	eventTerminate = "terminate"
	eventReaped    = "reaped"
)

type runContext struct {
	Script string
}

// runStateMachine tracks the probe run lifecycle. Once a terminate event has
// fired no send is accepted, which backs the invariant that an exited process
// never sees another write.
type runStateMachine struct {
	interpreter *statekit.Interpreter[runContext]
}

func newRunStateMachine(script string) (*runStateMachine, error) {
	builder := statekit.NewMachine[runContext]("probe-run").
		WithInitial(stateNotStarted).
		WithContext(runContext{Script: script})

	builder.State(stateNotStarted).
		On(eventLaunch).Target(stateLaunched).
		Done()

	builder.State(stateLaunched).
		On(eventSend).Target(stateStepPending).
		On(eventTerminate).Target(stateTerminating).
		Done()

	builder.State(stateStepPending).
		On(eventRecord).Target(stateStepComplete).
		On(eventTerminate).Target(stateTerminating).
		Done()

	builder.State(stateStepComplete).
		On(eventSend).Target(stateStepPending).
		On(eventTerminate).Target(stateTerminating).
		Done()

	builder.State(stateTerminating).
		On(eventReaped).Target(stateTerminated).
		Done()

	builder.State(stateTerminated).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build run state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &runStateMachine{interpreter: interpreter}, nil
}

// Transition fires event and reports an error if the machine did not move.
func (m *runStateMachine) Transition(event string) error {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.Current()
	if before == after {
		return fmt.Errorf("event %q not valid in state %q", event, before)
	}
	return nil
}

func (m *runStateMachine) Current() string {
	return string(m.interpreter.State().Value)
}

// Step is one scripted request.
type Step struct {
	Method string
	Params json.RawMessage
}

// Script is an ordered sequence of requests to send against one server
// process. Each step is one write followed by one read; responses are matched
// to steps positionally.
type Script struct {
	Name  string
	Steps []Step
}

// HandshakeFirst is the conventional startup sequence: initialize, then list
// the tool catalog.
func HandshakeFirst() Script {
	initParams, _ := json.Marshal(InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      Implementation{Name: "mcpdiag", Version: Version},
	})
	listParams, _ := json.Marshal(ListToolsParams{})
	return Script{
		Name: "handshake-first",
		Steps: []Step{
			{Method: MethodInitialize, Params: initParams},
			{Method: MethodListTools, Params: listParams},
		},
	}
}

// HandshakeOmitted skips initialize and goes straight to tools/list. It
// exercises the server's state validation; whatever the server does is
// recorded, not judged.
func HandshakeOmitted() Script {
	listParams, _ := json.Marshal(ListToolsParams{})
	return Script{
		Name: "handshake-omitted",
		Steps: []Step{
			{Method: MethodListTools, Params: listParams},
		},
	}
}

// BuiltinScripts returns the scripts a default diagnostic run executes.
func BuiltinScripts() []Script {
	return []Script{HandshakeFirst(), HandshakeOmitted()}
}

// Timeouts bounds every blocking wait in a probe run.
type Timeouts struct {
	// Step bounds each request/response exchange.
	Step time.Duration
	// Settle is the post-launch window for catching immediate crashes.
	Settle time.Duration
	// Grace is how long a terminated server gets to exit voluntarily
	// before being killed.
	Grace time.Duration
}

// DefaultTimeouts provides the diagnostic defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Step:   10 * time.Second,
		Settle: time.Second,
		Grace:  2 * time.Second,
	}
}

// Prober runs scripts against a server described by a Config. One process is
// launched and torn down per script run; runs never share a process.
type Prober struct {
	cfg Config
	t   Timeouts
	log *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithTimeouts overrides the diagnostic default timeouts.
func WithTimeouts(t Timeouts) ProberOption {
	return func(pr *Prober) {
		pr.t = t
	}
}

// WithProberLogger routes run logging to the given logger.
func WithProberLogger(log *slog.Logger) ProberOption {
	return func(pr *Prober) {
		pr.log = log
	}
}

// NewProber creates a Prober for the given server configuration.
func NewProber(cfg Config, opts ...ProberOption) *Prober {
	pr := &Prober{
		cfg: cfg,
		t:   DefaultTimeouts(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Run executes one script against a freshly launched server process and
// always returns a complete report when the process could be started at all.
// The only error it returns is a *LaunchError; every other failure is
// recorded as outcome data.
func (pr *Prober) Run(ctx context.Context, script Script) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Script:  script.Name,
		Started: time.Now(),
	}

	fsm, err := newRunStateMachine(script.Name)
	if err != nil {
		return nil, err
	}

	proc, err := Launch(ctx, pr.cfg, WithLogger(pr.log))
	if err != nil {
		return nil, err
	}
	pr.transition(fsm, eventLaunch)

	// Give servers that crash on startup a moment to do so, rather than
	// discovering it through a full read timeout on step one.
	exited := proc.Settle(pr.t.Settle)

	for i, step := range script.Steps {
		if !exited && proc.Exited() {
			exited = true
		}
		if exited {
			report.Outcomes = append(report.Outcomes, pr.exitedOutcome(proc, i, step))
			continue
		}

		pr.transition(fsm, eventSend)
		report.Outcomes = append(report.Outcomes, pr.runStep(ctx, proc, i, step, &exited))
		pr.transition(fsm, eventRecord)
	}

	pr.transition(fsm, eventTerminate)
	if exited {
		report.Stdout = proc.DrainStdout()
	}
	report.ExitCode = proc.Terminate(pr.t.Grace)
	pr.transition(fsm, eventReaped)

	report.Stderr = proc.Stderr()
	report.Duration = time.Since(report.Started)
	return report, nil
}

// runStep performs one write/read exchange and classifies the result. It
// flips *exited when the process is discovered dead along the way, which
// downgrades all remaining steps without further I/O.
func (pr *Prober) runStep(ctx context.Context, proc *Process, i int, step Step, exited *bool) Outcome {
	start := time.Now()
	req := NewRequest(i+1, step.Method, step.Params)

	if err := WriteRequest(proc, req); err != nil {
		// A refused write usually means the pipe broke under us; give
		// the process a moment to be reaped and re-check.
		if proc.Settle(pr.t.Settle) {
			*exited = true
			return pr.exitedOutcome(proc, i, step)
		}
		pr.log.Debug("write failed with process still alive", "step", i, "err", err)
		return Outcome{
			Step:    i,
			Method:  step.Method,
			Kind:    OutcomeWriteError,
			Cause:   err.Error(),
			Elapsed: time.Since(start),
		}
	}

	resp, err := ReadResponse(ctx, proc, pr.t.Step)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		return Outcome{
			Step:     i,
			Method:   step.Method,
			Kind:     OutcomeSuccess,
			Response: resp,
			Elapsed:  elapsed,
		}
	case errors.Is(err, ErrStreamClosed):
		proc.Settle(pr.t.Settle)
		*exited = true
		o := pr.exitedOutcome(proc, i, step)
		o.Elapsed = elapsed
		return o
	default:
		var de *DecodeError
		if errors.As(err, &de) {
			return Outcome{
				Step:    i,
				Method:  step.Method,
				Kind:    OutcomeDecodeError,
				Raw:     de.Raw,
				Cause:   de.Err.Error(),
				Elapsed: elapsed,
			}
		}
		return Outcome{
			Step:    i,
			Method:  step.Method,
			Kind:    OutcomeTimeout,
			Elapsed: elapsed,
		}
	}
}

func (pr *Prober) exitedOutcome(proc *Process, i int, step Step) Outcome {
	code, _ := proc.ExitCode()
	return Outcome{
		Step:     i,
		Method:   step.Method,
		Kind:     OutcomeProcessExited,
		ExitCode: code,
	}
}

// transition advances the lifecycle machine. An invalid transition is a
// harness bug, not a probe result, so it is logged rather than escalated.
func (pr *Prober) transition(fsm *runStateMachine, event string) {
	if err := fsm.Transition(event); err != nil {
		pr.log.Warn("lifecycle transition rejected", "event", event, "err", err)
	}
}
