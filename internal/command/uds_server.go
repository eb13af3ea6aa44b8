package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"firestige.xyz/hsprobe/internal/log"
)

const (
	// maxRequestSize bounds one request line; console filters are the longest payload.
	maxRequestSize = 64 * 1024
	// idleTimeout closes connections that send nothing.
	idleTimeout = 2 * time.Minute
)

// UDSServer serves JSON-RPC 2.0 requests, one per line, over a Unix domain socket.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler
	listener   net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket and serves until ctx is cancelled. A stale socket file
// is replaced; a socket another probe still answers on is an error.
func (s *UDSServer) Start(ctx context.Context) error {
	if socketInUse(s.socketPath) {
		return fmt.Errorf("socket %s is in use by a running probe", s.socketPath)
	}
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	// Owner only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	log.GetLogger().WithField("socket", s.socketPath).Info("control socket listening")
	go s.acceptLoop(ctx)

	<-ctx.Done()
	log.GetLogger().WithField("reason", ctx.Err()).Info("control socket closing")
	return s.Stop()
}

func socketInUse(path string) bool {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *UDSServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			log.GetLogger().WithError(err).Error("failed to accept control connection")
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *UDSServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// handleConnection answers requests until the peer closes, goes idle, or sends a
// line longer than maxRequestSize.
func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !scanner.Scan() {
			break
		}
		if err := encoder.Encode(s.serve(ctx, scanner.Bytes())); err != nil {
			log.GetLogger().WithError(err).Warn("failed to send control response")
			return
		}
	}

	if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
		_ = encoder.Encode(rpcError(nil, ErrCodeInvalidRequest, fmt.Sprintf("request exceeds %d bytes", maxRequestSize)))
	} else if err != nil && !s.isStopped() {
		log.GetLogger().WithError(err).Debug("control connection ended")
	}
}

// serve turns one request line into a response. Requests for methods the handler
// does not know never reach it.
func (s *UDSServer) serve(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		log.GetLogger().WithError(err).Warn("malformed control request")
		return rpcError(nil, ErrCodeParseError, fmt.Sprintf("parse error: %v", err))
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return rpcError(req.ID, ErrCodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}
	if req.Method == "" {
		return rpcError(req.ID, ErrCodeInvalidRequest, "method is required")
	}
	if !s.handler.Supports(req.Method) {
		log.GetLogger().WithField("method", req.Method).Debug("unknown control method")
		return rpcError(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: resp.Result, Error: resp.Error}
}

func rpcError(id interface{}, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

// Stop closes the listener and every open connection, then removes the socket file.
// The file is left alone when Start never listened.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	listener.Close()
	s.wg.Wait()
	_ = os.RemoveAll(s.socketPath)

	log.GetLogger().Info("control socket closed")
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
