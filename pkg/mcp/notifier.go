package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcheck/pkg/schema"
)

// ClientNotifier pushes validation summaries to connected clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier with MCP log message notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes through the MCP session of
// each client.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notifications/message to the client's session.
// Best-effort: returns nil if the client is not connected.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(clientID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session closed between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// summaryPayload builds the logging notification for one validation run.
func summaryPayload(tool string, res *schema.ValidationResult) map[string]any {
	level := "info"
	switch {
	case !res.Valid:
		level = "error"
	case len(res.Warnings) > 0:
		level = "warning"
	}
	return map[string]any{
		"level":  level,
		"logger": "flowcheck",
		"data": map[string]any{
			"tool":     tool,
			"valid":    res.Valid,
			"errors":   len(res.Errors),
			"warnings": len(res.Warnings),
		},
	}
}
