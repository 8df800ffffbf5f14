// Package mcp exposes an agent as a Model Context Protocol server, so MCP
// hosts can drive conversations and inspect sessions as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/session"
)

// TurnResponse is the structured result of the process_turn tool.
type TurnResponse struct {
	Message       string          `json:"message" jsonschema_description:"The assistant's reply"`
	Session       *domain.Session `json:"session,omitempty" jsonschema_description:"Post-turn session snapshot"`
	RouteComplete bool            `json:"route_complete" jsonschema_description:"Whether the active route finished this turn"`
	Error         string          `json:"error,omitempty" jsonschema_description:"Turn-level error, when the turn failed"`
}

// Agent is the slice of the engine facade the MCP server needs.
type Agent interface {
	Process(ctx context.Context, sessionID, input string) *domain.TurnResult
	Routes() []*domain.Route
	Sessions() (*session.Manager, error)
}

// Server wraps an agent and exposes it over MCP.
type Server struct {
	agent     Agent
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server for an agent.
func NewServer(agent Agent, name, version string) *Server {
	s := &Server{
		agent:     agent,
		mcpServer: server.NewMCPServer(name, version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio runs the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE runs the server over SSE on the given port until the context is
// canceled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	httpServer := &http.Server{Addr: addr, Handler: sseServer}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	processTool := mcp.NewTool("process_turn",
		mcp.WithDescription("Process one conversation turn. Creates the session when the id is new or empty."),
		mcp.WithString("session_id", mcp.Description("Session id (optional; a new session is created when omitted)")),
		mcp.WithString("input", mcp.Required(), mcp.Description("The user's message")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(processTool, mcp.NewStructuredToolHandler(s.handleProcessTurn))

	getTool := mcp.NewTool("get_session",
		mcp.WithDescription("Get the current snapshot of a session: route, step, collected data and history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	s.mcpServer.AddTool(getTool, s.handleGetSession)

	listTool := mcp.NewTool("list_sessions",
		mcp.WithDescription("List the ids of known sessions."),
	)
	s.mcpServer.AddTool(listTool, s.handleListSessions)

	deleteTool := mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a session and its history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	s.mcpServer.AddTool(deleteTool, s.handleDeleteSession)

	routesTool := mcp.NewTool("list_routes",
		mcp.WithDescription("List the registered routes with their steps, for introspection."),
	)
	s.mcpServer.AddTool(routesTool, s.handleListRoutes)
}

func (s *Server) handleProcessTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TurnResponse, error) {
	sessionID, _ := args["session_id"].(string)
	input, _ := args["input"].(string)

	result := s.agent.Process(ctx, sessionID, input)
	resp := TurnResponse{
		Message:       result.Message,
		Session:       result.Session,
		RouteComplete: result.RouteComplete,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	manager, err := s.agent.Sessions()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := manager.Load(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	raw, _ := json.Marshal(sess)
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manager, err := s.agent.Sessions()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := manager.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	raw, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	manager, err := s.agent.Sessions()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := manager.Delete(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return mcp.NewToolResultText("deleted"), nil
}

func (s *Server) handleListRoutes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(routeSummaries(s.agent.Routes()))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("parley://routes", "Registered Routes",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(routeSummaries(s.agent.Routes()))
		if err != nil {
			return nil, fmt.Errorf("failed to encode routes: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "parley://routes",
				MIMEType: "application/json",
				Text:     string(raw),
			},
		}, nil
	})
}

type routeSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
}

func routeSummaries(routes []*domain.Route) []routeSummary {
	out := make([]routeSummary, 0, len(routes))
	for _, route := range routes {
		summary := routeSummary{
			ID:          route.ID,
			Title:       route.Title,
			Description: route.Description,
		}
		for _, step := range route.Steps {
			summary.Steps = append(summary.Steps, step.ID)
		}
		out = append(out, summary)
	}
	return out
}
