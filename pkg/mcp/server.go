package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/validation"
)

// ServerDeps holds the dependencies for creating a FlowcheckServer.
type ServerDeps struct {
	Validator *validation.Validator
	Logger    *slog.Logger
	// Profile names the profile validate_node uses when the call names
	// none. Empty means rules.DefaultProfile.
	Profile string
	Version string
}

// FlowcheckServer wraps an MCP server with the validation tool handlers.
type FlowcheckServer struct {
	validator *validation.Validator
	logger    *slog.Logger
	profile   rules.Profile
	query     *report.Query
	sessions  *SessionRegistry
	notifier  ClientNotifier
	mcpServer *server.MCPServer
}

// NewFlowcheckServer creates a FlowcheckServer with all 5 tools registered.
func NewFlowcheckServer(deps ServerDeps) *FlowcheckServer {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	profile := rules.DefaultProfile
	if deps.Profile != "" {
		p, err := rules.ParseProfile(deps.Profile)
		if err != nil {
			logger.Warn("ignoring default profile", slog.String("error", err.Error()))
		} else {
			profile = p
		}
	}

	s := &FlowcheckServer{
		validator: deps.Validator,
		logger:    logger,
		profile:   profile,
		query:     report.NewQuery(),
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowcheck",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions("flowcheck validates n8n workflow documents without running them. "+
			"Use validate_workflow for a full check, validate_workflow_connections or validate_workflow_expressions for a quick pass, "+
			"and validate_node or validate_node_minimal while building a single node. Every tool accepts an optional jq 'query' to trim the result."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowcheckServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowcheckServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *FlowcheckServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateWorkflowTool(), Handler: s.handleValidateWorkflow},
		{Tool: validateConnectionsTool(), Handler: s.handleValidateConnections},
		{Tool: validateExpressionsTool(), Handler: s.handleValidateExpressions},
		{Tool: validateNodeTool(), Handler: s.handleValidateNode},
		{Tool: validateNodeMinimalTool(), Handler: s.handleValidateNodeMinimal},
	}
}

// --- Tool definitions ---

var profileNames = []string{"minimal", "runtime", "ai-friendly", "strict"}

func workflowArgs(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow document with 'nodes' and 'connections'")),
		mcp.WithString("query", mcp.Description("jq filter applied to the result")),
		mcp.WithString("client_id", mcp.Description("Caller id; a summary notification is pushed to its session")),
	}, opts...)
}

func nodeArgs(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithString("node_type", mcp.Required(), mcp.Description("Node type, e.g. n8n-nodes-base.httpRequest")),
		mcp.WithObject("config", mcp.Description("Node parameters plus node-level settings such as onError")),
		mcp.WithString("name", mcp.Description("Node name used in findings (default: the node type)")),
		mcp.WithNumber("type_version", mcp.Description("Node typeVersion")),
		mcp.WithString("query", mcp.Description("jq filter applied to the result")),
	}, opts...)
}

func validateWorkflowTool() mcp.Tool {
	return mcp.NewTool("validate_workflow", workflowArgs(
		mcp.WithDescription("Validate a complete workflow: structure, node configuration, expressions and AI topology"),
		mcp.WithObject("options", mcp.Description("validateNodes, validateConnections, validateExpressions (booleans, default true) and profile")),
	)...)
}

func validateConnectionsTool() mcp.Tool {
	return mcp.NewTool("validate_workflow_connections", workflowArgs(
		mcp.WithDescription("Validate workflow structure, connections and AI topology only"),
	)...)
}

func validateExpressionsTool() mcp.Tool {
	return mcp.NewTool("validate_workflow_expressions", workflowArgs(
		mcp.WithDescription("Validate the {{ }} expressions of every node in a workflow"),
	)...)
}

func validateNodeTool() mcp.Tool {
	return mcp.NewTool("validate_node", nodeArgs(
		mcp.WithDescription("Validate one node configuration against its type's rules"),
		mcp.WithString("profile",
			mcp.Enum(profileNames...),
			mcp.Description("Validation profile (default: runtime)"),
		),
	)...)
}

func validateNodeMinimalTool() mcp.Tool {
	return mcp.NewTool("validate_node_minimal", nodeArgs(
		mcp.WithDescription("List the required properties a node configuration is missing"),
	)...)
}
