// Package toolserver implements the module-side endpoint of the tool-RPC
// protocol: a named tool/resource/prompt registry and a dispatch loop that
// serves one transport at a time.
package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sparesparrow/mia-sub000/internal/transport"
	"github.com/sparesparrow/mia-sub000/internal/wire"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// Server is a module-side Tool Server: it owns a tool/resource/prompt
// registry and, while serving, the transport instance it dispatches over.
type Server struct {
	name    string
	version string
	logger  *slog.Logger

	mu          sync.RWMutex
	tools       map[string]models.Tool
	schemas     map[string]*jsonschema.Schema
	resources   map[string]models.Resource
	prompts     map[string]models.Prompt
	initialized bool
}

// New creates an empty Tool Server identifying itself as name/version
// during initialize.
func New(name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:      name,
		version:   version,
		logger:    logger.With("component", "toolserver", "server", name),
		tools:     make(map[string]models.Tool),
		schemas:   make(map[string]*jsonschema.Schema),
		resources: make(map[string]models.Resource),
		prompts:   make(map[string]models.Prompt),
	}
}

// AddTool registers a tool. Names must be unique within the server. When
// the tool declares an InputSchema, it is compiled immediately so
// registration fails fast on a malformed schema.
func (s *Server) AddTool(tool models.Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("toolserver: tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("toolserver: tool %q requires a handler", tool.Name)
	}

	var compiled *jsonschema.Schema
	if len(tool.InputSchema) > 0 {
		compiler := jsonschema.NewCompiler()
		resource := "inmem://" + tool.Name + "/input-schema.json"
		if err := compiler.AddResource(resource, bytes.NewReader(tool.InputSchema)); err != nil {
			return fmt.Errorf("toolserver: tool %q schema: %w", tool.Name, err)
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			return fmt.Errorf("toolserver: tool %q schema: %w", tool.Name, err)
		}
		compiled = schema
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; exists {
		return fmt.Errorf("toolserver: tool %q already registered", tool.Name)
	}
	s.tools[tool.Name] = tool
	if compiled != nil {
		s.schemas[tool.Name] = compiled
	}
	return nil
}

// AddResource registers a resource. URIs must be unique.
func (s *Server) AddResource(resource models.Resource) error {
	if resource.URI == "" {
		return fmt.Errorf("toolserver: resource URI is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[resource.URI]; exists {
		return fmt.Errorf("toolserver: resource %q already registered", resource.URI)
	}
	s.resources[resource.URI] = resource
	return nil
}

// AddPrompt registers a prompt. Names must be unique.
func (s *Server) AddPrompt(prompt models.Prompt) error {
	if prompt.Name == "" {
		return fmt.Errorf("toolserver: prompt name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prompts[prompt.Name]; exists {
		return fmt.Errorf("toolserver: prompt %q already registered", prompt.Name)
	}
	s.prompts[prompt.Name] = prompt
	return nil
}

// Serve runs the dispatch loop until the transport closes or a shutdown
// request is handled. The loop is sequential: one message is handled to
// completion before the next is read. On exit, the transport is always
// closed.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	defer t.Close()

	if err := t.Connect(ctx); err != nil {
		return fmt.Errorf("toolserver: connect: %w", err)
	}

	for {
		frame, err := t.Receive(ctx)
		if err != nil {
			if err == transport.ErrClosed {
				return nil
			}
			return fmt.Errorf("toolserver: receive: %w", err)
		}

		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			s.logger.Warn("dropping unparseable frame", "error", err)
			continue
		}

		resp, stop := s.handleMessage(ctx, &req)
		if resp != nil {
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("marshal response", "error", err)
				continue
			}
			if _, err := t.Send(ctx, data); err != nil {
				return fmt.Errorf("toolserver: send response: %w", err)
			}
		}
		if stop {
			return nil
		}
	}
}

// handleMessage dispatches one request by method name. The bool return
// signals the serve loop to stop after replying (shutdown).
func (s *Server) handleMessage(ctx context.Context, req *wire.Request) (*wire.Response, bool) {
	switch req.Method {
	case wire.MethodInitialize:
		return s.handleInitialize(req), false
	case wire.MethodToolsList:
		return s.handleToolsList(req), false
	case wire.MethodToolsCall:
		return s.handleToolsCall(req), false
	case wire.MethodResourcesList:
		return s.handleResourcesList(req), false
	case wire.MethodResourcesRead:
		return s.handleResourcesRead(req), false
	case wire.MethodPromptsList:
		return s.handlePromptsList(req), false
	case wire.MethodPromptsGet:
		return s.handlePromptsGet(req), false
	case wire.MethodPing:
		return result(req.ID, struct{}{}), false
	case wire.MethodShutdown:
		return result(req.ID, struct{}{}), true
	default:
		return errorResponse(req.ID, wire.ErrCodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method)), false
	}
}

func (s *Server) handleInitialize(req *wire.Request) *wire.Response {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	res := wire.InitializeResult{
		ProtocolVersion: wire.ProtocolVersion,
		Capabilities: wire.Capabilities{
			Tools:     &wire.ToolsCapability{},
			Resources: &wire.ResourcesCapability{},
			Prompts:   &wire.PromptsCapability{},
		},
		ServerInfo: wire.ServerInfo{Name: s.name, Version: s.version},
	}
	return result(req.ID, res)
}

func (s *Server) handleToolsList(req *wire.Request) *wire.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptors := make([]wire.ToolDescriptor, 0, len(s.tools))
	for _, tool := range s.tools {
		descriptors = append(descriptors, wire.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return result(req.ID, wire.ListToolsResult{Tools: descriptors})
}

func (s *Server) handleToolsCall(req *wire.Request) *wire.Response {
	var params wire.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, wire.ErrCodeInvalidParams, "tools/call requires a name")
	}

	s.mu.RLock()
	tool, ok := s.tools[params.Name]
	schema := s.schemas[params.Name]
	s.mu.RUnlock()

	if !ok {
		return errorResponse(req.ID, wire.ErrCodeToolNotFound, fmt.Sprintf("tool not found: %s", params.Name))
	}

	if schema != nil {
		var decoded any
		if len(params.Arguments) == 0 {
			decoded = map[string]any{}
		} else if err := json.Unmarshal(params.Arguments, &decoded); err != nil {
			return errorResponse(req.ID, wire.ErrCodeInvalidParams, fmt.Sprintf("arguments: %v", err))
		}
		if err := schema.Validate(decoded); err != nil {
			return errorResponse(req.ID, wire.ErrCodeInvalidParams, fmt.Sprintf("arguments: %v", err))
		}
	}

	value, err := tool.Handler(params.Arguments)
	if err != nil {
		return errorResponse(req.ID, wire.ErrCodeInternalError, err.Error())
	}

	return result(req.ID, wire.CallToolResult{
		Content: []wire.ContentItem{{Type: "text", Text: stringify(value)}},
	})
}

func (s *Server) handleResourcesList(req *wire.Request) *wire.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptors := make([]wire.ResourceDescriptor, 0, len(s.resources))
	for _, r := range s.resources {
		descriptors = append(descriptors, wire.ResourceDescriptor{
			URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType,
		})
	}
	return result(req.ID, wire.ListResourcesResult{Resources: descriptors})
}

func (s *Server) handleResourcesRead(req *wire.Request) *wire.Response {
	var params wire.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return errorResponse(req.ID, wire.ErrCodeInvalidParams, "resources/read requires a uri")
	}

	s.mu.RLock()
	r, ok := s.resources[params.URI]
	s.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, wire.ErrCodeResourceNotFound, fmt.Sprintf("resource not found: %s", params.URI))
	}

	return result(req.ID, wire.ReadResourceResult{
		Contents: []wire.ResourceContent{{URI: r.URI, MimeType: r.MimeType}},
	})
}

func (s *Server) handlePromptsList(req *wire.Request) *wire.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptors := make([]wire.PromptDescriptor, 0, len(s.prompts))
	for _, p := range s.prompts {
		args := make([]wire.PromptArgDescriptor, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, wire.PromptArgDescriptor{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		descriptors = append(descriptors, wire.PromptDescriptor{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return result(req.ID, wire.ListPromptsResult{Prompts: descriptors})
}

func (s *Server) handlePromptsGet(req *wire.Request) *wire.Response {
	var params wire.GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, wire.ErrCodeInvalidParams, "prompts/get requires a name")
	}

	s.mu.RLock()
	p, ok := s.prompts[params.Name]
	s.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, wire.ErrCodePromptNotFound, fmt.Sprintf("prompt not found: %s", params.Name))
	}

	return result(req.ID, wire.GetPromptResult{Description: p.Description})
}

func result(id any, value any) *wire.Response {
	data, err := json.Marshal(value)
	if err != nil {
		return errorResponse(id, wire.ErrCodeInternalError, err.Error())
	}
	return &wire.Response{JSONRPC: wire.ProtocolVersion, ID: id, Result: data}
}

func errorResponse(id any, code int, message string) *wire.Response {
	return &wire.Response{JSONRPC: wire.ProtocolVersion, ID: id, Error: wire.NewError(code, message)}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
