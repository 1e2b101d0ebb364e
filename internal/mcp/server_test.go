package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"laptopmcp/internal/index"
	"laptopmcp/internal/ingest"
	"laptopmcp/internal/model"
	"laptopmcp/internal/repository"
	"laptopmcp/internal/search"
	"laptopmcp/internal/store"
)

// axisEmbedder places each known listing on its own axis so similarity
// rankings are deterministic without a real embedding endpoint.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 4)
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "x1 carbon"):
			vec[0] = 1
		case strings.Contains(lower, "t480"):
			vec[0], vec[1] = 0.9, 0.1
		case strings.Contains(lower, "macbook"):
			vec[2] = 1
		default:
			vec[3] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func newTestStack(t *testing.T) (*search.Service, *repository.SearchRepository) {
	t.Helper()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "laptops.sqlite"))
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	repo := repository.New(st, index.NewCosineIndex(""), axisEmbedder{}, "")
	t.Cleanup(func() { _ = repo.Close() })

	source := &ingest.StaticSource{Listings: []model.Laptop{
		{ProductID: "jd-1001", Brand: "Lenovo", Model: "ThinkPad X1 Carbon", Title: "ThinkPad X1 Carbon Gen 9", Description: "business ultrabook", Price: 5999},
		{ProductID: "jd-1002", Brand: "Lenovo", Model: "ThinkPad T480", Title: "ThinkPad T480", Description: "business laptop", Price: 2999},
		{ProductID: "jd-1003", Brand: "Apple", Model: "MacBook Air M1", Title: "MacBook Air", Description: "thin and light", Price: 4500},
	}}
	return search.NewService(repo, axisEmbedder{}, source), repo
}

func newTestHTTPServer(t *testing.T, keepAlive time.Duration) (*httptest.Server, *search.Service, *repository.SearchRepository) {
	t.Helper()
	svc, repo := newTestStack(t)
	srv, err := NewServer(ServerOptions{
		KeepAlive:  keepAlive,
		Dispatcher: NewDispatcher(svc),
		Health:     repo.IsConnected,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc, repo
}

func postEnvelope(t *testing.T, url, body string) rpcResponse {
	t.Helper()
	resp, err := http.Post(url+"/mcp", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func TestEndToEndThinkPadScenario(t *testing.T) {
	ts, _, _ := newTestHTTPServer(t, time.Minute)

	// 1. refresh loads the catalog
	resp := postEnvelope(t, ts.URL,
		`{"jsonrpc": "2.0", "id": 1, "method": "call_tool", "params": {"name": "refresh_laptop_data", "arguments": {}}}`)
	result := callToolResult(t, resp)
	structured := result.StructuredContent.(map[string]interface{})
	if structured["count"].(float64) != 3 || structured["status"] != "ok" {
		t.Fatalf("refresh payload wrong: %+v", structured)
	}

	// 2. keyword search finds both ThinkPads
	resp = postEnvelope(t, ts.URL,
		`{"jsonrpc": "2.0", "id": 2, "method": "call_tool", "params": {"name": "search_laptops", "arguments": {"keyword": "ThinkPad"}}}`)
	result = callToolResult(t, resp)
	listing := result.StructuredContent.(map[string]interface{})
	if listing["count"].(float64) != 2 {
		t.Fatalf("expected 2 ThinkPads, got %v", listing["count"])
	}

	// 3. the X1's nearest neighbor is the T480, and the X1 itself is excluded
	laptops := listing["laptops"].([]interface{})
	var x1ID float64
	for _, raw := range laptops {
		l := raw.(map[string]interface{})
		if l["productId"] == "jd-1001" {
			x1ID = l["id"].(float64)
		}
	}
	if x1ID == 0 {
		t.Fatal("X1 missing from keyword results")
	}

	resp = postEnvelope(t, ts.URL,
		`{"jsonrpc": "2.0", "id": 3, "method": "call_tool", "params": {"name": "find_similar_laptops", "arguments": {"laptopId": `+jsonNumber(x1ID)+`, "limit": 2}}}`)
	result = callToolResult(t, resp)
	similar := result.StructuredContent.(map[string]interface{})
	hits := similar["laptops"].([]interface{})
	if len(hits) == 0 || len(hits) > 2 {
		t.Fatalf("expected 1-2 similar laptops, got %d", len(hits))
	}
	first := hits[0].(map[string]interface{})
	if first["productId"] != "jd-1002" {
		t.Fatalf("expected T480 nearest to X1, got %v", first["productId"])
	}
	for _, raw := range hits {
		if raw.(map[string]interface{})["id"].(float64) == x1ID {
			t.Fatal("reference laptop leaked into similarity results")
		}
	}

	// 4. lookup by marketplace product id
	resp = postEnvelope(t, ts.URL,
		`{"jsonrpc": "2.0", "id": 4, "method": "call_tool", "params": {"name": "get_laptop_by_id", "arguments": {"productId": "jd-1003"}}}`)
	result = callToolResult(t, resp)
	payload := result.StructuredContent.(map[string]interface{})
	if payload["model"] != "MacBook Air M1" {
		t.Fatalf("unexpected laptop: %+v", payload)
	}

	// 5. price range is inclusive at both ends
	resp = postEnvelope(t, ts.URL,
		`{"jsonrpc": "2.0", "id": 5, "method": "call_tool", "params": {"name": "search_laptops", "arguments": {"minPrice": 2999, "maxPrice": 5999}}}`)
	result = callToolResult(t, resp)
	listing = result.StructuredContent.(map[string]interface{})
	if listing["count"].(float64) != 3 {
		t.Fatalf("inclusive price range wrong: %v", listing["count"])
	}
}

func jsonNumber(f float64) string {
	data, _ := json.Marshal(f)
	return string(data)
}

func TestEventsStreamSendsCatalogBeforeKeepAlive(t *testing.T) {
	ts, _, _ := newTestHTTPServer(t, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("wrong content type: %s", ct)
	}

	var events []string
	var payloads []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
		if len(events) >= 3 && len(payloads) >= 3 {
			break
		}
	}
	if len(events) < 3 || len(payloads) < 3 {
		t.Fatalf("stream ended early, events: %v", events)
	}

	if events[0] != "catalog" {
		t.Fatalf("first event must be the catalog, got %q", events[0])
	}
	for _, ev := range events[1:] {
		if ev != "keep-alive" {
			t.Fatalf("expected keep-alive after catalog, got %q", ev)
		}
	}

	// every stream message shares the request/response envelope framing,
	// so one parser handles both directions
	type notification struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	wantMethods := []string{"catalog", "keep-alive", "keep-alive"}
	var catalogParams json.RawMessage
	for i, payload := range payloads[:3] {
		var msg notification
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			t.Fatalf("message %d is not valid JSON: %v", i, err)
		}
		if msg.JSONRPC != "2.0" {
			t.Fatalf("message %d lacks envelope framing: %s", i, payload)
		}
		if msg.Method != wantMethods[i] {
			t.Fatalf("message %d method: got %q want %q", i, msg.Method, wantMethods[i])
		}
		if i == 0 {
			catalogParams = msg.Params
		}
	}

	var catalog struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(catalogParams, &catalog); err != nil {
		t.Fatalf("catalog params are not valid JSON: %v", err)
	}
	if len(catalog.Tools) != 4 {
		t.Fatalf("catalog should list 4 tools, got %d", len(catalog.Tools))
	}
}

func TestEnvelopeEndpointRejectsGet(t *testing.T) {
	ts, _, _ := newTestHTTPServer(t, time.Minute)
	resp, err := http.Get(ts.URL + "/mcp")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHealthzReportsConnected(t *testing.T) {
	ts, _, _ := newTestHTTPServer(t, time.Minute)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Status    string `json:"status"`
		Connected bool   `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if payload.Status != "ok" || !payload.Connected {
		t.Fatalf("unexpected health payload: %+v", payload)
	}
}
