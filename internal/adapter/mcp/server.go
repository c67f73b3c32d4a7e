// Package mcp exposes the council to MCP clients over streamable HTTP.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

// Reviewer runs a multi-agent review.
type Reviewer interface {
	Review(ctx context.Context, req service.ReviewRequest) (council.ReviewOutcome, error)
}

// Planner runs a planning deliberation.
type Planner interface {
	Plan(ctx context.Context, req service.PlanRequest) (council.Plan, error)
}

// SessionReader reads implementation sessions.
type SessionReader interface {
	Status(ctx context.Context, id string) (session.Snapshot, error)
	List(ctx context.Context) ([]session.Session, error)
}

// ServerDeps are the services behind the tools. Any of them may be nil;
// the matching tool then reports that it is not configured.
type ServerDeps struct {
	Reviews  Reviewer
	Planner  Planner
	Sessions SessionReader
}

// ServerConfig names the server in the MCP handshake.
type ServerConfig struct {
	Name    string
	Version string
	APIKey  string
}

// Server wraps an mcp-go server with the council tools and resources.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer builds the server and registers tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler serves the streamable HTTP transport behind the optional API key.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}
