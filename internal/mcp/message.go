package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// rpcRequest is one JSON-RPC 2.0 request envelope. The id is kept as raw
// JSON so responses echo it byte for byte, whatever its type.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// normalizeID returns the id to echo. A missing or null id gets a
// generated UUID string, so every response is correlatable.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 || bytes.Equal(bytes.TrimSpace(id), nullID) {
		generated, _ := json.Marshal(uuid.NewString())
		return generated
	}
	return id
}

func successResponse(id json.RawMessage, result interface{}) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, rpcErr *rpcError) rpcResponse {
	if id == nil {
		id = nullID
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func encodeResponse(resp rpcResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// the envelope is built from marshal-safe values; reaching this
		// means a handler returned something unencodable
		fallback := errorResponse(resp.ID, internalError(fmt.Sprintf("encode response: %v", err)))
		data, _ = json.Marshal(fallback)
	}
	return data
}
