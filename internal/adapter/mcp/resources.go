package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const sessionsURI = "codecouncil://sessions"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			sessionsURI,
			"Implementation Sessions",
			mcplib.WithResourceDescription("Every implementation session with its progress"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSessionsResource,
	)
}

func (s *Server) handleSessionsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	text := `{"error":"session reader not configured"}`
	if s.deps.Sessions != nil {
		list, err := s.deps.Sessions.List(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		text = string(data)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: text},
	}, nil
}
