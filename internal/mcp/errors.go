package mcp

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func parseError(msg string) *rpcError {
	return &rpcError{Code: codeParseError, Message: "Parse error: " + msg}
}

func invalidRequest(msg string) *rpcError {
	return &rpcError{Code: codeInvalidRequest, Message: msg}
}

func methodNotFound(msg string) *rpcError {
	return &rpcError{Code: codeMethodNotFound, Message: msg}
}

func invalidParams(msg string) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: msg}
}

func internalError(msg string) *rpcError {
	return &rpcError{Code: codeInternalError, Message: "Internal error: " + msg}
}
