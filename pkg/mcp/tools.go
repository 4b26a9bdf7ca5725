package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

// handleValidateWorkflow runs the full pipeline.
func (s *FlowcheckServer) handleValidateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, failed := s.workflowArg(req)
	if failed != nil {
		return failed, nil
	}
	opts, err := parseOptions(mcp.ParseStringMap(req, "options", nil))
	if err != nil {
		return errorResult(err), nil
	}
	res := s.validator.ValidateWorkflow(ctx, wf, opts)
	return s.workflowResult(ctx, req, res)
}

// handleValidateConnections checks structure, connections and AI topology.
func (s *FlowcheckServer) handleValidateConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, failed := s.workflowArg(req)
	if failed != nil {
		return failed, nil
	}
	return s.workflowResult(ctx, req, s.validator.ValidateConnections(ctx, wf))
}

// handleValidateExpressions checks the expressions of every node.
func (s *FlowcheckServer) handleValidateExpressions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, failed := s.workflowArg(req)
	if failed != nil {
		return failed, nil
	}
	return s.workflowResult(ctx, req, s.validator.ValidateExpressions(ctx, wf))
}

// handleValidateNode validates one node configuration under a profile.
func (s *FlowcheckServer) handleValidateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	node, failed := s.nodeArg(req)
	if failed != nil {
		return failed, nil
	}
	profile := s.profile
	if name := req.GetString("profile", ""); name != "" {
		p, err := rules.ParseProfile(name)
		if err != nil {
			return errorResult(err), nil
		}
		profile = p
	}

	out, err := s.validator.ValidateNode(ctx, node, profile)
	if err != nil {
		return errorResult(err), nil
	}
	return s.respond(ctx, req, out)
}

// handleValidateNodeMinimal lists missing required properties.
func (s *FlowcheckServer) handleValidateNodeMinimal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	node, failed := s.nodeArg(req)
	if failed != nil {
		return failed, nil
	}
	out, err := s.validator.ValidateNodeMinimal(ctx, node)
	if err != nil {
		return errorResult(err), nil
	}
	return s.respond(ctx, req, out)
}

// --- Argument helpers ---

// workflowArg decodes the workflow argument, accepted as an object or as a
// JSON string, through the document shape check.
func (s *FlowcheckServer) workflowArg(req mcp.CallToolRequest) (*schema.Workflow, *mcp.CallToolResult) {
	if s.validator == nil {
		return nil, mcp.NewToolResultError("validator is not configured")
	}
	raw, ok := req.GetArguments()["workflow"]
	if !ok || raw == nil {
		return nil, mcp.NewToolResultError("workflow is required")
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err))
		}
		data = encoded
	}

	wf, err := validation.DecodeWorkflow(data)
	if err != nil {
		return nil, errorResult(err)
	}
	return wf, nil
}

func (s *FlowcheckServer) nodeArg(req mcp.CallToolRequest) (*schema.Node, *mcp.CallToolResult) {
	if s.validator == nil {
		return nil, mcp.NewToolResultError("validator is not configured")
	}
	nodeType, err := req.RequireString("node_type")
	if err != nil {
		return nil, mcp.NewToolResultError("node_type is required")
	}
	node := &schema.Node{
		Name:       req.GetString("name", nodeType),
		Type:       nodeType,
		Parameters: mcp.ParseStringMap(req, "config", map[string]any{}),
	}
	if v, ok := req.GetArguments()["type_version"]; ok {
		node.TypeVersion = v
	}
	return node, nil
}

// parseOptions reads the validate_workflow options object over the defaults.
func parseOptions(raw map[string]any) (validation.Options, error) {
	opts := validation.DefaultOptions()
	flags := map[string]*bool{
		"validateNodes":       &opts.ValidateNodes,
		"validateConnections": &opts.ValidateConnections,
		"validateExpressions": &opts.ValidateExpressions,
	}
	for key, dst := range flags {
		v, ok := raw[key]
		if !ok {
			continue
		}
		b, isBool := v.(bool)
		if !isBool {
			return opts, schema.NewErrorf(schema.ErrCodeValidation, "option %s must be a boolean", key)
		}
		*dst = b
	}
	if v, ok := raw["profile"]; ok {
		name, _ := v.(string)
		p, err := rules.ParseProfile(name)
		if err != nil {
			return opts, err
		}
		opts.Profile = p
	}
	return opts, nil
}

// --- Result helpers ---

// workflowResult notifies the calling client, when it identified itself,
// and renders the result.
func (s *FlowcheckServer) workflowResult(ctx context.Context, req mcp.CallToolRequest, res *schema.ValidationResult) (*mcp.CallToolResult, error) {
	if clientID := req.GetString("client_id", ""); clientID != "" {
		s.captureSession(ctx, clientID)
		if err := s.notifier.Notify(ctx, clientID, summaryPayload(req.Params.Name, res)); err != nil {
			s.logger.WarnContext(ctx, "summary notification failed",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.respond(ctx, req, res)
}

// respond renders v as JSON, applying the optional jq query. A query with
// one output returns that output; otherwise the outputs are returned as an
// array.
func (s *FlowcheckServer) respond(ctx context.Context, req mcp.CallToolRequest, v any) (*mcp.CallToolResult, error) {
	filter := req.GetString("query", "")
	if filter == "" {
		return marshalResult(v)
	}
	out, err := s.query.Run(ctx, filter, v)
	if err != nil {
		return errorResult(err), nil
	}
	if len(out) == 1 {
		return marshalResult(out[0])
	}
	return marshalResult(out)
}

// captureSession maps the client id to its current MCP session for notifications.
func (s *FlowcheckServer) captureSession(ctx context.Context, clientID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}

// errorResult renders an error as a tool error. Coded errors keep their
// code and details.
func errorResult(err error) *mcp.CallToolResult {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		if data, mErr := json.Marshal(fe); mErr == nil {
			return mcp.NewToolResultError(string(data))
		}
	}
	return mcp.NewToolResultError(err.Error())
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
