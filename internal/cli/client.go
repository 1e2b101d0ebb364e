package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"laptopmcp/internal/protocol"
)

// toolClient is the one-shot HTTP client used by the status, search and
// refresh commands to talk to a running server.
type toolClient struct {
	baseURL string
	mcpPath string
	http    *http.Client
}

func newToolClient(baseURL string) *toolClient {
	return &toolClient{
		baseURL: baseURL,
		mcpPath: protocol.DefaultMCPPath,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// callTool invokes one tool and returns the raw result.
func (c *toolClient) callTool(ctx context.Context, name string, arguments map[string]interface{}) (json.RawMessage, error) {
	req := rpcEnvelope{
		JSONRPC: "2.0",
		ID:      1,
		Method:  protocol.MethodCallTool,
		Params: map[string]interface{}{
			"name":      name,
			"arguments": arguments,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.mcpPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.baseURL, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	var resp rpcEnvelope
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

type healthReport struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Server    string `json:"server"`
	Version   string `json:"version"`
}

func (c *toolClient) health(ctx context.Context) (healthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return healthReport{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return healthReport{}, fmt.Errorf("probe %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return healthReport{}, fmt.Errorf("decode health report: %w", err)
	}
	return report, nil
}
