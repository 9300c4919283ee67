package mcpdiag

import "time"

// OutcomeKind classifies what happened to a single scripted step.
type OutcomeKind string

const (
	// OutcomeSuccess means a response line was read and decoded. The
	// response may still carry an RPC-level error object; that is the
	// server answering, not the harness failing.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeTimeout means no response line arrived within the step
	// timeout.
	OutcomeTimeout OutcomeKind = "timeout"
	// OutcomeProcessExited means the server terminated before or during
	// the step. Once recorded, every later step in the script carries it
	// too, with no I/O attempted.
	OutcomeProcessExited OutcomeKind = "process-exited"
	// OutcomeDecodeError means a line was read but was not valid JSON.
	OutcomeDecodeError OutcomeKind = "decode-error"
	// OutcomeWriteError means the request could not be written and the
	// process had not (yet) been observed exited.
	OutcomeWriteError OutcomeKind = "write-error"
)

// Outcome records the result of one scripted step.
type Outcome struct {
	// Step is the zero-based index within the script.
	Step int `json:"step"`
	// Method is the JSON-RPC method the step sent (or would have sent).
	Method string `json:"method"`
	// Kind classifies the result.
	Kind OutcomeKind `json:"kind"`
	// Response is set for OutcomeSuccess.
	Response *Response `json:"response,omitempty"`
	// Raw preserves the undecodable line for OutcomeDecodeError.
	Raw string `json:"raw,omitempty"`
	// Cause describes the underlying failure for the error kinds.
	Cause string `json:"cause,omitempty"`
	// ExitCode is set for OutcomeProcessExited.
	ExitCode int `json:"exit_code,omitempty"`
	// Elapsed is how long the step took, zero for steps skipped after an
	// observed exit.
	Elapsed time.Duration `json:"elapsed"`
}

// Report is the full result of running one script against one server
// process. It is always produced, even when every step failed.
type Report struct {
	// RunID uniquely identifies this probe run.
	RunID string `json:"run_id"`
	// Script names the script that was executed.
	Script string `json:"script"`
	// Outcomes holds one entry per scripted step, in order.
	Outcomes []Outcome `json:"outcomes"`
	// ExitCode is the process's final exit status, captured at teardown.
	// A terminate-induced death reports -1.
	ExitCode int `json:"exit_code"`
	// Stdout holds output lines left buffered when the process exited
	// early, if any.
	Stdout []string `json:"stdout,omitempty"`
	// Stderr is the full captured error-stream text.
	Stderr string `json:"stderr"`
	// Started and Duration time the run.
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether any step ended in something other than a decoded
// response.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Kind != OutcomeSuccess {
			return true
		}
	}
	return false
}
