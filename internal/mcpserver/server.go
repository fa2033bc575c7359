// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the plan sync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/plansync"
)

const contractURI = "gtm://marker-format"

// Server wraps the MCP server with the sync tools.
type Server struct {
	mcp *server.MCPServer
	mgr *plansync.Manager
}

// New creates a new MCP server with all tools registered.
func New(mgr *plansync.Manager, version string) *Server {
	s := &Server{mgr: mgr}

	s.mcp = server.NewMCPServer(
		"gtmkit",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report which steps of a project need syncing between JSON and markdown plans."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project or company name")),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("sync_step",
		mcp.WithDescription("Sync one step of a project. Conflicts are resolved by the configured policy "+
			"unless prefer is given."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project or company name")),
		mcp.WithString("step", mcp.Required(), mcp.Description("Step name, e.g. overview")),
		mcp.WithString("prefer", mcp.Description("Winning side of a conflict: json or plans")),
	), s.syncStep)

	s.mcp.AddTool(mcp.NewTool("sync_project",
		mcp.WithDescription("Sync every step of a project in order."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project or company name")),
	), s.syncProject)

	s.mcp.AddTool(mcp.NewTool("read_plan",
		mcp.WithDescription("Read the markdown plan of a step. Keep every {#field} marker intact when editing; "+
			"read the contract first via get_marker_contract or the "+contractURI+" resource."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project or company name")),
		mcp.WithString("step", mcp.Required(), mcp.Description("Step name")),
	), s.readPlan)

	s.mcp.AddTool(mcp.NewTool("lint_plan",
		mcp.WithDescription("Check a step's markdown plan for duplicate or misplaced field markers and "+
			"missing required fields."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project or company name")),
		mcp.WithString("step", mcp.Required(), mcp.Description("Step name")),
	), s.lintPlan)

	s.mcp.AddTool(mcp.NewTool("get_marker_contract",
		mcp.WithDescription("Returns the field marker contract and the fields of every step. "+
			"Call this before editing a plan."),
	), s.getMarkerContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Plan Marker Contract",
			mcp.WithResourceDescription("Field marker protocol that keeps markdown plans syncable."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.mgr.GetSyncStatus(project)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) syncStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := req.RequireString("step")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := plansync.SyncOptions{AutoResolve: true}
	if p := req.GetString("prefer", ""); p != "" {
		a, err := plansync.ParseAction(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Prefer = a
	}
	res, err := s.mgr.SyncStep(project, step, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) syncProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sum, err := s.mgr.SyncProject(project, nil, plansync.SyncOptions{AutoResolve: true})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) readPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := req.RequireString("step")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.mgr.ReadPlan(project, step)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// lintReport is the lint_plan payload.
type lintReport struct {
	Issues   []markers.Issue `json:"issues"`
	Orphaned []string        `json:"orphaned_fields"`
	Warnings []string        `json:"warnings"`
	Clean    bool            `json:"clean"`
}

func (s *Server) lintPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := req.RequireString("step")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issues, err := s.mgr.LintPlan(project, step)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parsed, err := s.mgr.ParsePlan(project, step)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep := lintReport{
		Issues:   issues,
		Orphaned: parsed.Orphaned,
		Warnings: parsed.Warnings,
		Clean:    len(issues) == 0 && len(parsed.Orphaned) == 0 && len(parsed.Warnings) == 0,
	}
	if rep.Issues == nil {
		rep.Issues = []markers.Issue{}
	}
	return jsonResult(rep), nil
}

func (s *Server) getMarkerContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkerContract(s.mgr.Schema())), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     MarkerContract(s.mgr.Schema()),
		},
	}, nil
}
