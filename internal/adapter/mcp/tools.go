package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.reviewCodeTool(),
		s.planFeatureTool(),
		s.sessionStatusTool(),
	)
}

func (s *Server) reviewCodeTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("review_code",
		mcplib.WithDescription("Run the multi-agent quality review and return the consolidated report"),
		mcplib.WithString("code", mcplib.Required(), mcplib.Description("Source code to review")),
		mcplib.WithString("language", mcplib.Description("Programming language, defaults to javascript")),
		mcplib.WithString("context", mcplib.Description("Free-form context for the reviewers")),
		mcplib.WithString("llm_preference",
			mcplib.Description("Task profile used to pick a model backend"),
			mcplib.Enum("fast", "cheap", "quality", "balanced"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReviewCode}
}

func (s *Server) planFeatureTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("plan_feature",
		mcplib.WithDescription("Ask the council for an implementation plan for a feature request"),
		mcplib.WithString("request", mcplib.Required(), mcplib.Description("Natural-language feature request")),
		mcplib.WithString("context", mcplib.Description("Additional context for the council")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handlePlanFeature}
}

func (s *Server) sessionStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("session_status",
		mcplib.WithDescription("Get progress of an implementation session"),
		mcplib.WithString("session_id", mcplib.Required(), mcplib.Description("The session id returned by /code/implement")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSessionStatus}
}

func (s *Server) handleReviewCode(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	args := req.GetArguments()
	code := stringArg(args, "code")
	if code == "" {
		return mcplib.NewToolResultError("code is required"), nil
	}
	language := stringArg(args, "language")
	if language == "" {
		language = "javascript"
	}
	out, err := s.deps.Reviews.Review(ctx, service.ReviewRequest{
		Code:     code,
		Language: language,
		Context:  stringArg(args, "context"),
		Profile:  council.ParseProfile(stringArg(args, "llm_preference")),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("review failed", err), nil
	}
	return jsonResult(out)
}

func (s *Server) handlePlanFeature(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	args := req.GetArguments()
	request := stringArg(args, "request")
	if request == "" {
		return mcplib.NewToolResultError("request is required"), nil
	}
	plan, err := s.deps.Planner.Plan(ctx, service.PlanRequest{Request: request, Context: stringArg(args, "context")})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("planning failed", err), nil
	}
	return jsonResult(plan)
}

func (s *Server) handleSessionStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil {
		return mcplib.NewToolResultError("session reader not configured"), nil
	}
	id := stringArg(req.GetArguments(), "session_id")
	if id == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	snap, err := s.deps.Sessions.Status(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get session %s", id), err), nil
	}
	return jsonResult(snap)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
