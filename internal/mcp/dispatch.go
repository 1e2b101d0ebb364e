package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"laptopmcp/internal/protocol"
)

// Dispatcher routes JSON-RPC envelopes to the tool registry. It is shared
// by the HTTP and TCP transports: one raw request in, one encoded
// response out.
type Dispatcher struct {
	tools map[string]toolDefinition
}

func NewDispatcher(svc LaptopSearcher) *Dispatcher {
	return &Dispatcher{tools: buildToolRegistry(svc)}
}

// Dispatch handles a single raw envelope and returns the encoded
// response.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeResponse(errorResponse(nullID, parseError(err.Error())))
	}

	id := normalizeID(req.ID)

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return encodeResponse(errorResponse(id, invalidRequest(fmt.Sprintf("unsupported jsonrpc version: %s", req.JSONRPC))))
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return encodeResponse(errorResponse(id, invalidRequest("Method is required")))
	}

	start := time.Now()
	resp := d.route(ctx, method, req.Params, id)
	slog.Debug("request dispatched",
		"method", method, "ok", resp.Error == nil,
		"duration_ms", time.Since(start).Milliseconds())
	return encodeResponse(resp)
}

func (d *Dispatcher) route(ctx context.Context, method string, params json.RawMessage, id json.RawMessage) rpcResponse {
	switch method {
	case protocol.MethodListTools, protocol.MethodListToolsAlias:
		return successResponse(id, d.listToolsResult())
	case protocol.MethodCallTool, protocol.MethodCallToolAlias:
		return d.callTool(ctx, params, id)
	default:
		return errorResponse(id, methodNotFound("Method not found: "+method))
	}
}

func (d *Dispatcher) callTool(ctx context.Context, rawParams json.RawMessage, id json.RawMessage) rpcResponse {
	params, err := parseToolsCallParams(rawParams)
	if err != nil {
		return errorResponse(id, invalidParams(err.Error()))
	}

	tool, ok := d.tools[params.Name]
	if !ok {
		return errorResponse(id, methodNotFound("Tool not found: "+params.Name))
	}

	result, toolErr := tool.handler(ctx, params.Arguments)
	if toolErr == nil {
		return successResponse(id, result)
	}
	switch toolErr.rpcCode {
	case 0:
		return successResponse(id, newToolErrorResult(*toolErr))
	case codeInvalidParams:
		return errorResponse(id, invalidParams(toolErr.message))
	default:
		return errorResponse(id, internalError(toolErr.message))
	}
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 {
		return toolsCallParams{}, fmt.Errorf("params is required")
	}
	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, fmt.Errorf("invalid call_tool params")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, fmt.Errorf("Tool name is required")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	return params, nil
}

// listToolsResult returns the tool catalog in registration order.
func (d *Dispatcher) listToolsResult() map[string]interface{} {
	tools := make([]toolDefinition, 0, len(d.tools))
	for _, name := range toolOrder {
		if tool, ok := d.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	if len(tools) == 0 {
		names := make([]string, 0, len(d.tools))
		for name := range d.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tools = append(tools, d.tools[name])
		}
	}
	return map[string]interface{}{"tools": tools}
}
