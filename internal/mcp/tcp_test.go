package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func startTCPServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	srv := NewTCPServer("", NewDispatcher(&fakeSearcher{refreshCount: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ServeListener(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("tcp server did not stop")
		}
	})
	return ln.Addr().String()
}

func TestTCPServerAnswersLineDelimitedRequests(t *testing.T) {
	addr := startTCPServer(t)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	reader := bufio.NewReader(conn)

	requests := []string{
		`{"jsonrpc": "2.0", "id": "a", "method": "list_tools"}`,
		`{"jsonrpc": "2.0", "id": 2, "method": "call_tool", "params": {"name": "get_laptop_by_id", "arguments": {"productId": "p-x1"}}}`,
		`not json`,
	}
	wantIDs := []string{`"a"`, `2`, `null`}

	for i, reqLine := range requests {
		if _, err := conn.Write([]byte(reqLine + "\n")); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read response %d failed: %v", i, err)
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("response %d is not valid JSON: %v", i, err)
		}
		if string(resp.ID) != wantIDs[i] {
			t.Fatalf("response %d id: got %s want %s", i, resp.ID, wantIDs[i])
		}
	}
}

func TestTCPServerHandlesConcurrentConnections(t *testing.T) {
	addr := startTCPServer(t)

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				results <- err
				return
			}
			defer func() { _ = conn.Close() }()
			if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"list_tools"}` + "\n")); err != nil {
				results <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, err = bufio.NewReader(conn).ReadBytes('\n')
			results <- err
		}()
	}
	for i := 0; i < 3; i++ {
		if err := <-results; err != nil {
			t.Fatalf("connection %d failed: %v", i, err)
		}
	}
}
