// Package ipc exposes the daemon's command surface to the desktop shell
// over a JSON-RPC 2.0 WebSocket connection, and carries window
// directives back the other way.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lantern/officedesk/internal/app"
	"github.com/lantern/officedesk/internal/backend"
	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/office"
	"github.com/lantern/officedesk/internal/preflight"
	"github.com/lantern/officedesk/internal/workflow"
)

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInternal       = -32603

	// Stable app error taxonomy.
	ErrCodeInvalid  = 1000
	ErrCodeNotFound = 1404
	ErrCodeGate     = 4120 // diagnostics gate closed
	ErrCodeBackend  = 4000
)

// Config holds the dependencies for the IPC server.
type Config struct {
	App     *app.App
	Toolkit *ShellToolkit
	Bus     *bus.Bus
	Logger  *slog.Logger

	AuthToken string

	// AllowOrigins controls accepted Origin headers for browser WS
	// connections. Empty list means same-origin only.
	AllowOrigins []string

	// ConfigFingerprint is the hash of active config exposed in system.status.
	ConfigFingerprint string
}

// Server accepts shell connections and dispatches JSON-RPC requests.
type Server struct {
	cfg    Config
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*client]struct{}
}

type client struct {
	conn       *websocket.Conn
	mu         sync.Mutex
	handshaken bool

	subMu     sync.Mutex
	busSub    *bus.Subscription
	busCancel context.CancelFunc
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	Method  string    `json:"method,omitempty"`
	Params  any       `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a Server and binds it to the toolkit so window directives
// reach the connected shell.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		clients: map[*client]struct{}{},
	}
	if cfg.Toolkit != nil {
		cfg.Toolkit.Bind(s)
	}
	return s
}

// Handler returns the HTTP handler for the IPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	last := s.cfg.App.LastDiagnostics()
	payload := map[string]any{
		"healthy":          true,
		"preflight_passed": s.cfg.App.IsPreflightPassed(),
		"diagnostics_run":  last != nil,
		"open_windows":     len(s.cfg.App.ListOffices()),
	}
	if last != nil {
		payload["diagnostics_status"] = last.Status
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowOrigins,
	})
	if err != nil {
		return
	}
	c := &client{conn: conn}
	s.addClient(c)
	s.logger.Info("ipc: shell connected")
	defer func() {
		s.removeClient(c)
		s.logger.Info("ipc: shell disconnecting")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		var req rpcRequest
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			s.logger.Error("ipc: read error, closing", "error", err)
			return
		}
		resp := s.handleRPC(r.Context(), c, req)
		if resp == nil {
			continue
		}
		if err := c.write(r.Context(), resp); err != nil {
			s.logger.Error("ipc: write response error", "method", req.Method, "error", err)
		}
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return false
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token != "" && token == s.cfg.AuthToken
}

func isMutatingMethod(method string) bool {
	switch method {
	case "diagnostics.run", "office.create", "office.close",
		"office.consent.set", "office.ttl.set", "office.move",
		"office.message.send", "office.broadcast", "workflow.run",
		"backend.evaluate", "backend.mutate", "backend.snapshot.create":
		return true
	default:
		return false
	}
}

func (s *Server) handleRPC(ctx context.Context, c *client, req rpcRequest) *rpcResponse {
	id, hasID := decodeID(req.ID)
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !hasID {
			return nil
		}
		return &rpcResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &rpcError{Code: ErrCodeInvalidRequest, Message: "invalid JSON-RPC request"},
		}
	}
	if isMutatingMethod(req.Method) && !c.isHandshaken() {
		if !hasID {
			return nil
		}
		return &rpcResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &rpcError{Code: ErrCodeInvalidRequest, Message: "system.hello required before mutating calls"},
		}
	}

	result, rpcErr := s.dispatch(ctx, c, req)

	if !hasID {
		return nil
	}
	if rpcErr != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	}
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) dispatch(ctx context.Context, c *client, req rpcRequest) (any, *rpcError) {
	a := s.cfg.App

	switch req.Method {
	case "system.hello":
		c.markHandshaken()
		return map[string]any{
			"protocol":      "officedesk",
			"version":       "1.0",
			"supported_min": "1.0",
			"supported_max": "1.0",
		}, nil

	case "system.status":
		last := a.LastDiagnostics()
		status := map[string]any{
			"preflight_passed":   a.IsPreflightPassed(),
			"open_windows":       len(a.ListOffices()),
			"config_fingerprint": s.cfg.ConfigFingerprint,
		}
		if last != nil {
			status["diagnostics_status"] = last.Status
			status["diagnostics_at"] = last.Timestamp
		}
		return status, nil

	case "diagnostics.run":
		return a.RunDiagnostics(ctx), nil

	case "diagnostics.last":
		last := a.LastDiagnostics()
		if last == nil {
			return nil, &rpcError{Code: ErrCodeNotFound, Message: "no diagnostics run yet"}
		}
		return last, nil

	case "office.list":
		return map[string]any{"windows": a.ListOffices()}, nil

	case "office.roles":
		return map[string]any{"roles": office.Roles()}, nil

	case "office.create":
		var p struct {
			Role          string `json:"role"`
			MemoryConsent bool   `json:"memory_consent"`
			TTLSeconds    uint64 `json:"ttl_seconds"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		role, err := office.ParseRole(p.Role)
		if err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: err.Error()}
		}
		winID, err := a.CreateOffice(ctx, role, p.MemoryConsent, p.TTLSeconds)
		if err != nil {
			return nil, &rpcError{Code: ErrCodeInternal, Message: err.Error()}
		}
		return map[string]any{"window_id": winID}, nil

	case "office.get":
		var p struct {
			WindowID string `json:"window_id"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		win, err := a.GetOffice(p.WindowID)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return win, nil

	case "office.close":
		var p struct {
			WindowID string `json:"window_id"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if err := a.CloseOffice(ctx, p.WindowID); err != nil {
			return nil, notFoundOrInternal(err)
		}
		if s.cfg.Toolkit != nil {
			s.cfg.Toolkit.Forget(p.WindowID)
		}
		return map[string]any{"closed": true}, nil

	case "office.consent.set":
		var p struct {
			WindowID string `json:"window_id"`
			Consent  bool   `json:"consent"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if err := a.SetOfficeConsent(p.WindowID, p.Consent); err != nil {
			return nil, notFoundOrInternal(err)
		}
		return map[string]any{"updated": true}, nil

	case "office.ttl.set":
		var p struct {
			WindowID   string `json:"window_id"`
			TTLSeconds uint64 `json:"ttl_seconds"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if err := a.SetOfficeTTL(p.WindowID, p.TTLSeconds); err != nil {
			return nil, notFoundOrInternal(err)
		}
		return map[string]any{"updated": true}, nil

	case "office.move":
		var p struct {
			WindowID string `json:"window_id"`
			X        int    `json:"x"`
			Y        int    `json:"y"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if err := a.MoveOffice(p.WindowID, p.X, p.Y); err != nil {
			return nil, notFoundOrInternal(err)
		}
		return map[string]any{"updated": true}, nil

	case "office.message.send":
		var p struct {
			Role    string          `json:"role"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		role, err := office.ParseRole(p.Role)
		if err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: err.Error()}
		}
		if err := a.SendOfficeMessage(ctx, role, p.Payload); err != nil {
			return nil, &rpcError{Code: ErrCodeInternal, Message: err.Error()}
		}
		return map[string]any{"delivered": true}, nil

	case "office.broadcast":
		var p struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if err := a.BroadcastMessage(ctx, p.Payload); err != nil {
			return nil, &rpcError{Code: ErrCodeInternal, Message: err.Error()}
		}
		return map[string]any{"delivered": true}, nil

	case "workflow.run":
		var spec workflow.Spec
		if err := json.Unmarshal(req.Params, &spec); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		runID, err := a.RunWorkflow(ctx, spec)
		if err != nil {
			return nil, &rpcError{Code: ErrCodeInternal, Message: err.Error()}
		}
		return map[string]any{"run_id": runID}, nil

	case "backend.evaluate":
		var p backend.EvaluateRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		resp, err := a.Evaluate(ctx, p)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "backend.mutate":
		var p backend.MutateRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		resp, err := a.MutateWorkflow(ctx, p)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "backend.bandit_status":
		resp, err := a.BanditStatus(ctx)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "backend.snapshot.create":
		var p backend.SnapshotRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		resp, err := a.CreateMemorySnapshot(ctx, p)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "backend.dag":
		resp, err := a.WorkflowDAG(ctx)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "backend.telemetry":
		resp, err := a.TelemetryMetrics(ctx)
		if err != nil {
			return nil, backendError(err)
		}
		return resp, nil

	case "events.subscribe":
		s.subscribeClient(c)
		return map[string]any{"subscribed": true}, nil

	case "window.event":
		// Notification from the shell reporting a window-side event.
		var p struct {
			WindowID string          `json:"window_id"`
			Event    string          `json:"event"`
			Payload  json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.WindowID == "" || p.Event == "" {
			return nil, &rpcError{Code: ErrCodeInvalid, Message: "invalid params"}
		}
		if s.cfg.Toolkit != nil {
			s.cfg.Toolkit.Dispatch(p.WindowID, p.Event, p.Payload)
		}
		return map[string]any{"dispatched": true}, nil

	default:
		return nil, &rpcError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func notFoundOrInternal(err error) *rpcError {
	if errors.Is(err, office.ErrWindowNotFound) {
		return &rpcError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return &rpcError{Code: ErrCodeInternal, Message: err.Error()}
}

func backendError(err error) *rpcError {
	if errors.Is(err, preflight.ErrNotSatisfied) {
		return &rpcError{Code: ErrCodeGate, Message: err.Error()}
	}
	return &rpcError{Code: ErrCodeBackend, Message: err.Error()}
}

func decodeID(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	return generic, true
}

// Notify pushes a JSON-RPC notification to every connected shell client.
func (s *Server) Notify(ctx context.Context, method string, params any) error {
	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%s: no shell connected", method)
	}
	var firstErr error
	for _, c := range targets {
		if err := c.write(ctx, rpcResponse{JSONRPC: "2.0", Method: method, Params: params}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// subscribeClient forwards every bus event to the client as a
// notification until it disconnects.
func (s *Server) subscribeClient(c *client) {
	if s.cfg.Bus == nil {
		return
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.busSub != nil {
		return
	}
	sub := s.cfg.Bus.Subscribe("")
	ctx, cancel := context.WithCancel(context.Background())
	c.busSub = sub
	c.busCancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Ch():
				if !ok {
					return
				}
				if err := c.write(ctx, rpcResponse{
					JSONRPC: "2.0",
					Method:  "event",
					Params:  map[string]any{"topic": ev.Topic, "payload": ev.Payload},
				}); err != nil {
					s.logger.Error("ipc: event forward error", "topic", ev.Topic, "error", err)
					return
				}
			}
		}
	}()
}

func (s *Server) addClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	c.subMu.Lock()
	if c.busCancel != nil {
		c.busCancel()
	}
	if c.busSub != nil && s.cfg.Bus != nil {
		s.cfg.Bus.Unsubscribe(c.busSub)
	}
	c.subMu.Unlock()

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, c)
}

func (c *client) write(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, payload)
}

func (c *client) markHandshaken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshaken = true
}

func (c *client) isHandshaken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshaken
}
