package mcp

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// maxLineBytes bounds a single request line on the TCP transport.
const maxLineBytes = 1 << 20

// TCPServer speaks the same protocol over a plain socket: one JSON
// envelope per line, one response line back. Intended for LAN clients
// that cannot speak HTTP; disabled by blanking the listen address.
type TCPServer struct {
	addr       string
	dispatcher *Dispatcher
}

func NewTCPServer(addr string, dispatcher *Dispatcher) *TCPServer {
	return &TCPServer{addr: addr, dispatcher: dispatcher}
}

// Serve accepts connections until ctx is cancelled.
func (s *TCPServer) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener runs the accept loop on an already-bound listener.
func (s *TCPServer) ServeListener(ctx context.Context, listener net.Listener) error {
	slog.Info("tcp server listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatcher.Dispatch(ctx, line)
		resp = append(resp, '\n')
		if _, err := conn.Write(resp); err != nil {
			slog.Debug("tcp write failed", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Debug("tcp read ended", "remote", conn.RemoteAddr().String(), "error", err)
	}
}
