// Package copytext exposes the clipboard copy as an MCP tool.
package copytext

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sirupsen/logrus"
)

// CopyToClipboardTool writes text to the host clipboard
type CopyToClipboardTool struct{}

func init() {
	registry.Register(&CopyToClipboardTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *CopyToClipboardTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"copy_to_clipboard",
		mcp.WithDescription(`Copy text to the clipboard of the machine running this server. Omitting text clears the clipboard.

On failure the result is the error "Failed to copy to clipboard."`),
		mcp.WithString("text",
			mcp.Description("The text to copy. Defaults to an empty string."),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true), // replaces the clipboard contents
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute copies the text through the bridge
func (t *CopyToClipboardTool) Execute(ctx context.Context, logger *logrus.Logger, factory bridge.Factory, args map[string]any) (*mcp.CallToolResult, error) {
	text, err := parseText(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	n := 0
	if text != nil {
		n = utf8.RuneCountInString(*text)
	}
	logger.WithField("length", n).Debug("Copying text to clipboard")

	msg := bridge.Message{Port: bridge.PortCopyToClipboard, Value: text}
	return tools.Send(ctx, factory, msg, fmt.Sprintf("Copied %d characters to clipboard.", n)), nil
}

// parseText returns nil when text is absent or null
func parseText(args map[string]any) (*string, error) {
	raw, ok := args["text"]
	if !ok || raw == nil {
		return nil, nil
	}
	text, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("text must be a string, got %T", raw)
	}
	return &text, nil
}
