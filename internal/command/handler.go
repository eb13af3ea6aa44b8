// Package command implements the probe control plane: the runtime console
// grammar and the channels (UDS, Kafka) that carry commands to the probe.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"firestige.xyz/hsprobe/internal/log"
)

// Method names.
const (
	MethodConsoleExec    = "console_exec"
	MethodProbeStatus    = "probe_status"
	MethodDaemonStatus   = "daemon_status"
	MethodDaemonShutdown = "daemon_shutdown"
	MethodPing           = "ping"
)

// Version is reported by daemon_status.
var Version = "0.1.0"

// Console executes parsed console requests and returns the reply text.
type Console interface {
	Exec(ctx context.Context, req ConsoleRequest) (string, error)
}

// StatusProvider reports probe counters.
type StatusProvider interface {
	Status(ctx context.Context) (interface{}, error)
}

type methodFunc func(ctx context.Context, cmd Command) Response

// CommandHandler handles control plane commands.
type CommandHandler struct {
	console      Console
	status       StatusProvider
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc
	methods      map[string]methodFunc
}

// NewCommandHandler creates a new command handler. Either dependency may be nil;
// the matching methods then answer with an internal error.
func NewCommandHandler(console Console, status StatusProvider) *CommandHandler {
	h := &CommandHandler{
		console:   console,
		status:    status,
		startTime: time.Now().Unix(),
	}
	h.methods = map[string]methodFunc{
		MethodConsoleExec:    h.handleConsoleExec,
		MethodProbeStatus:    h.handleProbeStatus,
		MethodDaemonStatus:   h.handleDaemonStatus,
		MethodDaemonShutdown: h.handleDaemonShutdown,
		MethodPing:           h.handlePing,
	}
	return h
}

// Supports reports whether method is a known command.
func (h *CommandHandler) Supports(method string) bool {
	_, ok := h.methods[method]
	return ok
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "console_exec", "probe_status"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// ConsoleExecParams carries one raw console message.
type ConsoleExecParams struct {
	Message string `json:"message"`
}

// ConsoleExecResult is the console_exec result.
type ConsoleExecResult struct {
	MID   uint32 `json:"mid"`
	Reply string `json:"reply"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	log.GetLogger().WithFields(map[string]interface{}{
		"method": cmd.Method,
		"id":     cmd.ID,
	}).Debug("handling command")

	fn, ok := h.methods[cmd.Method]
	if !ok {
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
	return fn(ctx, cmd)
}

func (h *CommandHandler) handlePing(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: map[string]interface{}{"pong": true}}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

func (h *CommandHandler) handleConsoleExec(ctx context.Context, cmd Command) Response {
	var params ConsoleExecParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	req, err := ParseConsole(params.Message)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
	}
	if h.console == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "console not available")
	}

	reply, err := h.console.Exec(ctx, req)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, fmt.Sprintf("console exec failed: %v", err))
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"mid":   req.MID,
		"cmd":   string(req.Cmd),
		"value": req.Value,
	}).Info("console command executed")

	return Response{ID: cmd.ID, Result: ConsoleExecResult{MID: req.MID, Reply: reply}}
}

func (h *CommandHandler) handleProbeStatus(ctx context.Context, cmd Command) Response {
	if h.status == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "status not available")
	}
	st, err := h.status.Status(ctx)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, fmt.Sprintf("status failed: %v", err))
	}
	return Response{ID: cmd.ID, Result: st}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	log.GetLogger().Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":    Version,
			"uptime_sec": time.Now().Unix() - h.startTime,
		},
	}
}
