package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"laptopmcp/internal/protocol"
)

const maxRequestBytes = 1 << 20

// ServerOptions configures the HTTP transport.
type ServerOptions struct {
	ListenAddr string
	MCPPath    string
	// KeepAlive is the interval between stream keep-alive events.
	// Zero means protocol.DefaultKeepAlive.
	KeepAlive  time.Duration
	Dispatcher *Dispatcher
	// Health reports whether the repository is reachable; used by /healthz.
	Health func(ctx context.Context) bool
}

// Server is the HTTP transport: one POST endpoint for envelopes, an SSE
// stream for the catalog subscription, and a health probe.
type Server struct {
	opts ServerOptions
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = protocol.DefaultListenAddr
	}
	if opts.MCPPath == "" {
		opts.MCPPath = protocol.DefaultMCPPath
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = protocol.DefaultKeepAlive
	}
	return &Server{opts: opts}, nil
}

// Handler builds the route mux. Split out from Serve so tests can drive
// it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.MCPPath, s.handleEnvelope)
	mux.HandleFunc(s.opts.MCPPath+"/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays zero: the event stream writes for the whole
		// life of the connection
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.opts.ListenAddr, "path", s.opts.MCPPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	resp := s.opts.Dispatcher.Dispatch(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

// handleEvents serves the catalog subscription: one catalog message with
// the full tool list, then a keep-alive message on every tick until the
// client goes away. Both are framed as JSON-RPC notifications, so the
// parser a client uses for responses handles the stream too. The ticker
// lives inside the handler, so disconnect tears it down with the request
// context.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	catalog, err := streamNotification("catalog", s.opts.Dispatcher.listToolsResult())
	if err != nil {
		http.Error(w, "failed to encode catalog", http.StatusInternalServerError)
		return
	}
	keepAlive, err := streamNotification("keep-alive", map[string]interface{}{})
	if err != nil {
		http.Error(w, "failed to encode keep-alive", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: catalog\ndata: %s\n\n", catalog)
	flusher.Flush()

	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, "event: keep-alive\ndata: %s\n\n", keepAlive)
			flusher.Flush()
		}
	}
}

// streamNotification frames a server-initiated stream message as a
// JSON-RPC notification (no id, method plus params).
func streamNotification(method string, payload interface{}) ([]byte, error) {
	params, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	connected := false
	if s.opts.Health != nil {
		connected = s.opts.Health(r.Context())
	}
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    map[bool]string{true: "ok", false: "degraded"}[connected],
		"connected": connected,
		"server":    protocol.ServerName,
		"version":   protocol.ServerVersion,
	})
}
