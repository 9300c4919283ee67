package mcpdiag

import "encoding/json"

// Protocol version constants
const (
	ProtocolVersion = "2024-11-05"
	JSONRPCVersion  = "2.0"
)

// Well-known request methods
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
)

// Request is a single JSON-RPC request, serialized as one line on the wire.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a single JSON-RPC response decoded from one line of server
// output. Exactly one of Result and Error is expected to be set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Protocol parameter types
type (
	InitializeParams struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	}

	ListToolsParams struct {
		Cursor string `json:"cursor,omitempty"`
	}

	Implementation struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	ClientCapabilities struct {
		Experimental map[string]any `json:"experimental,omitempty"`
		Sampling     *struct{}      `json:"sampling,omitempty"`
	}
)

// NewRequest builds a request for the given method with already-encoded
// params.
func NewRequest(id int, method string, params json.RawMessage) *Request {
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewInitializeRequest builds the handshake request a client is expected to
// send before any other method.
func NewInitializeRequest(id int, clientInfo Implementation) *Request {
	params, _ := json.Marshal(InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      clientInfo,
	})
	return NewRequest(id, MethodInitialize, params)
}

// NewListToolsRequest builds a tools/list request.
func NewListToolsRequest(id int) *Request {
	params, _ := json.Marshal(ListToolsParams{})
	return NewRequest(id, MethodListTools, params)
}
