package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sirupsen/logrus"
)

// Tool is the interface that all MCP tool implementations must satisfy
type Tool interface {
	// Definition returns the tool's definition for MCP registration
	Definition() mcp.Tool

	// Execute runs the tool with the shared logger and bridge factory and the parsed arguments
	Execute(ctx context.Context, logger *logrus.Logger, factory bridge.Factory, args map[string]any) (*mcp.CallToolResult, error)
}

// ExtendedHelpProvider is implemented by tools that document examples and
// common failures beyond their MCP description
type ExtendedHelpProvider interface {
	ProvideExtendedInfo() *ExtendedHelp
}

// ExtendedHelp contains detailed information about a tool's usage
type ExtendedHelp struct {
	Examples        []ToolExample        `json:"examples,omitempty"`
	Troubleshooting []TroubleshootingTip `json:"troubleshooting,omitempty"`
	WhenToUse       string               `json:"when_to_use,omitempty"`
}

// ToolExample represents a usage example for a tool
type ToolExample struct {
	Description    string         `json:"description"`
	Arguments      map[string]any `json:"arguments"`
	ExpectedResult string         `json:"expected_result,omitempty"`
}

// TroubleshootingTip pairs an error a caller may see with its fix
type TroubleshootingTip struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// Send delivers msg to a fresh bridge and converts the reply into a tool
// result. A reply on the error port becomes an error result carrying the
// formatted message. When the bridge sends nothing, success is used.
func Send(ctx context.Context, factory bridge.Factory, msg bridge.Message, success string) *mcp.CallToolResult {
	rec := bridge.NewRecorder()
	factory(rec).Handle(ctx, msg)
	rec.Close()

	reply, ok := rec.Last()
	if !ok {
		if err := ctx.Err(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Request cancelled: %v", err))
		}
		return mcp.NewToolResultText(success)
	}
	if reply.IsError() {
		return mcp.NewToolResultError(reply.Text())
	}
	return mcp.NewToolResultText(reply.Text())
}
