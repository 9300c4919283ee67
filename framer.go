package mcpdiag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
)

var (
	// ErrReadTimeout reports that no response line arrived in time. The
	// underlying pipe read is not interrupted; it is abandoned and its
	// next line, if any, remains available to a later read.
	ErrReadTimeout = errors.New("timed out waiting for response")

	// ErrStreamClosed reports end-of-file on the server's output before a
	// full line arrived, which usually means the process exited. Callers
	// should check exit status rather than wait further.
	ErrStreamClosed = errors.New("server output stream closed")
)

// DecodeError reports a response line that was not valid JSON. The raw line
// is preserved verbatim for human diagnosis.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteRequest serializes req to a single line of JSON, appends the newline
// terminator and writes it to the server's input. Pipe writes are unbuffered,
// so the bytes reach the server without an explicit flush. A closed or broken
// pipe surfaces as a write error.
func WriteRequest(p *Process, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	p.log.Debug("send frame", "frame", string(data))

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if _, err := fmt.Fprintf(p.stdin, "%s\n", data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// ReadResponse reads one newline-terminated line from the server's output,
// blocking at most d, and decodes it as a JSON-RPC response. It returns
// ErrStreamClosed on end-of-file, a *DecodeError for a malformed line, and
// ErrReadTimeout when nothing arrives in time.
func ReadResponse(ctx context.Context, p *Process, d time.Duration) (*Response, error) {
	t := timeout.New[*Response](timeout.Config{
		DefaultTimeout: d,
	})
	resp, err := t.Execute(ctx, d, func(ctx context.Context) (*Response, error) {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return nil, ErrStreamClosed
			}
			p.log.Debug("recv frame", "frame", line)
			return decodeLine(line)
		case <-ctx.Done():
			return nil, ErrReadTimeout
		}
	})
	if err == nil {
		return resp, nil
	}
	var de *DecodeError
	if errors.As(err, &de) || errors.Is(err, ErrStreamClosed) {
		return nil, err
	}
	// Everything else, including the wrapper's own deadline error, means
	// the wait expired.
	return nil, ErrReadTimeout
}

func decodeLine(line string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, &DecodeError{Raw: line, Err: err}
	}
	return &resp, nil
}
