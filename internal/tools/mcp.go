package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/bank-report-review/internal/model"
)

// Server speaks MCP (JSON-RPC 2.0) on top of a Registry.  One Server is
// shared by every connection; per-connection state lives in a State.
type Server struct {
	registry *Registry
	name     string
	version  string
}

func NewServer(r *Registry, name, version string) *Server {
	return &Server{registry: r, name: name, version: version}
}

// State is the protocol state of one MCP client: whether it completed
// initialize and which user its tool calls run as.
type State struct {
	mu          sync.Mutex
	initialized bool
	identity    model.Identity
}

func NewState(id model.Identity) *State {
	return &State{identity: id}
}

func (st *State) Initialized() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.initialized
}

// Run reads newline-delimited requests from in and writes responses to out
// until in reaches EOF or ctx is done.  Tool calls run as id.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer, id model.Identity) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	st := NewState(id)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		reply := s.Handle(ctx, st, line)
		if reply == nil {
			continue
		}
		if _, err := out.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// Handle processes one JSON-RPC message and returns the encoded response,
// or nil when the message is a notification.
func (s *Server) Handle(ctx context.Context, st *State, raw []byte) json.RawMessage {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResponse(json.RawMessage("null"), codeParseError, "parse error: "+err.Error()))
	}
	if req.JSONRPC != "2.0" {
		if req.isNotification() {
			return nil
		}
		return encode(errorResponse(req.ID, codeInvalidRequest, "unsupported JSON-RPC version"))
	}
	if req.isNotification() {
		return nil
	}
	return encode(s.dispatch(ctx, st, &req))
}

func (s *Server) dispatch(ctx context.Context, st *State, req *request) response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(st, req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list", "tools/call":
		if !st.Initialized() {
			return errorResponse(req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		if req.Method == "tools/list" {
			return resultResponse(req.ID, toolsListResult{Tools: s.describe()})
		}
		return s.handleToolsCall(ctx, st, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(st *State, req *request) response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for initialize")
	}
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}
	st.mu.Lock()
	st.initialized = true
	st.mu.Unlock()
	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    serverCapabilities{Tools: &toolCapability{}},
		ServerInfo:      serverInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) describe() []toolDescription {
	readOnly, writes := true, false
	destructive := true
	out := make([]toolDescription, 0, len(s.registry.tools))
	for _, t := range s.registry.tools {
		ann := &toolAnnotations{ReadOnlyHint: &writes}
		if t.ReadOnly {
			ann.ReadOnlyHint = &readOnly
		}
		if t.Name == "delete_bank" {
			ann.DestructiveHint = &destructive
		}
		out = append(out, toolDescription{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Annotations: ann,
		})
	}
	return out
}

func (s *Server) handleToolsCall(ctx context.Context, st *State, req *request) response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	st.mu.Lock()
	id := st.identity
	st.mu.Unlock()

	res, err := s.registry.Call(ctx, id, params.Name, params.Arguments)
	if err != nil {
		return errorResponse(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}
	return resultResponse(req.ID, buildToolResult(res))
}

func buildToolResult(res Result) toolsCallResult {
	out := toolsCallResult{Content: []contentBlock{{Type: "text", Text: res.Text}}}
	if res.IsError {
		out.IsError = true
		out.ErrorInfo = &errorInfo{Category: res.Category, Retryable: res.Retryable}
		return out
	}
	// structuredContent must be an object; lists and tables stay text only.
	var obj map[string]any
	if json.Unmarshal([]byte(res.Text), &obj) == nil {
		out.StructuredContent = obj
	}
	return out
}

func resultResponse(id json.RawMessage, result any) response {
	return response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) response {
	return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func encode(r response) json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(errorResponse(r.ID, codeInternalError, "encode response: "+err.Error()))
	}
	return b
}

// Sessions tracks MCP-over-HTTP clients by their Mcp-Session-Id.  Each
// entry is owned by the login session that initialized it.
type Sessions struct {
	mu sync.Mutex
	m  map[string]sessionEntry
}

type sessionEntry struct {
	owner string
	state *State
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]sessionEntry)}
}

// Put stores st for owner and returns its new id.
func (s *Sessions) Put(owner string, st *State) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.m[id] = sessionEntry{owner: owner, state: st}
	s.mu.Unlock()
	return id
}

// Get returns the state for id when it belongs to owner.
func (s *Sessions) Get(id, owner string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok || e.owner != owner {
		return nil, false
	}
	return e.state, true
}

// Close removes id when it belongs to owner.
func (s *Sessions) Close(id, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok || e.owner != owner {
		return false
	}
	delete(s.m, id)
	return true
}

// CloseOwner removes every MCP session of a login session.
func (s *Sessions) CloseOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.m {
		if e.owner == owner {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
