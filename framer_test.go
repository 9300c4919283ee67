package mcpdiag

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRequestRoundTrip(t *testing.T) {
	cfg := writeStub(t, stubUninitialized)
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	req := NewListToolsRequest(1)
	if err := WriteRequest(p, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := ReadResponse(context.Background(), p, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}

	want := &Response{
		JSONRPC: "2.0",
		ID:      1,
		Error: &RPCError{
			Code:    -32002,
			Message: "not initialized",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestSerializesToOneLine(t *testing.T) {
	req := NewInitializeRequest(1, Implementation{Name: "test", Version: "1.0"})
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range data {
		if b == '\n' {
			t.Fatalf("serialized request contains an embedded newline: %s", data)
		}
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Method != MethodInitialize || decoded.JSONRPC != JSONRPCVersion {
		t.Errorf("round-trip lost fields: %+v", decoded)
	}
	var params InitializeParams
	if err := json.Unmarshal(decoded.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params.ProtocolVersion != ProtocolVersion {
		t.Errorf("got protocolVersion %q, want %q", params.ProtocolVersion, ProtocolVersion)
	}
}

func TestReadResponseTimeout(t *testing.T) {
	cfg := writeStub(t, stubSleeper)
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	start := time.Now()
	_, err = ReadResponse(context.Background(), p, 300*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("got %v, want ErrReadTimeout", err)
	}
	if elapsed > 1500*time.Millisecond {
		t.Errorf("read returned after %v, want roughly the 300ms timeout", elapsed)
	}
	if p.Exited() {
		t.Error("a timed-out read must not kill the process")
	}
}

func TestReadResponseStreamClosed(t *testing.T) {
	cfg := writeStub(t, "read -r line\nexit 0\n")
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	if err := WriteRequest(p, NewListToolsRequest(1)); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	_, err = ReadResponse(context.Background(), p, 2*time.Second)
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("got %v, want ErrStreamClosed", err)
	}
}

func TestReadResponseDecodeError(t *testing.T) {
	cfg := writeStub(t, stubGarbage)
	p, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(time.Second)

	if err := WriteRequest(p, NewListToolsRequest(1)); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	_, err = ReadResponse(context.Background(), p, 2*time.Second)

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
	if de.Raw != "zzz not json zzz" {
		t.Errorf("raw line %q not preserved verbatim", de.Raw)
	}
}
