// Package convert exposes the JSON/YAML conversions as MCP tools.
package convert

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sirupsen/logrus"
)

// JSONToYAMLTool converts a JSON document to YAML
type JSONToYAMLTool struct{}

// YAMLToJSONTool converts a YAML document to indented JSON
type YAMLToJSONTool struct{}

func init() {
	registry.Register(&JSONToYAMLTool{})
	registry.Register(&YAMLToJSONTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *JSONToYAMLTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"json_to_yaml",
		mcp.WithDescription(`Convert a JSON document to YAML. Object key order is preserved and strings that YAML would read as another type are quoted.

On failure the result is an error of the form "JSON parse/convert error: <reason>".`),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("The JSON text to convert"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute converts the input through the bridge
func (t *JSONToYAMLTool) Execute(ctx context.Context, logger *logrus.Logger, factory bridge.Factory, args map[string]any) (*mcp.CallToolResult, error) {
	input, err := parseInput(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	logger.WithField("input_bytes", len(input)).Debug("Converting JSON to YAML")
	return tools.Send(ctx, factory, bridge.Text(bridge.PortJSONToYAML, input), ""), nil
}

// ProvideExtendedInfo implements the ExtendedHelpProvider interface
func (t *JSONToYAMLTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		WhenToUse: "Use when a JSON payload needs to be shown or stored as YAML, e.g. turning an API response into a config file.",
		Examples: []tools.ToolExample{
			{
				Description:    "Convert a flat object",
				Arguments:      map[string]any{"input": `{"name": "Alice", "age": 30}`},
				ExpectedResult: "name: Alice\nage: 30\n",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "JSON parse/convert error: invalid character ...",
				Solution: "The input is not valid JSON. Check for trailing commas, single quotes or unquoted keys.",
			},
			{
				Problem:  "JSON parse/convert error: unexpected end of JSON input",
				Solution: "The input is empty or truncated.",
			},
		},
	}
}

// Definition returns the tool's definition for MCP registration
func (t *YAMLToJSONTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"yaml_to_json",
		mcp.WithDescription(`Convert a single YAML document to JSON indented with two spaces. An empty document becomes null. Input holding more than one document (separated by ---) is rejected; convert each document separately.

On failure the result is an error of the form "YAML parse/convert error (line L, col C): <reason>", the position being present when known.`),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("The YAML text to convert"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute converts the input through the bridge
func (t *YAMLToJSONTool) Execute(ctx context.Context, logger *logrus.Logger, factory bridge.Factory, args map[string]any) (*mcp.CallToolResult, error) {
	input, err := parseInput(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	logger.WithField("input_bytes", len(input)).Debug("Converting YAML to JSON")
	return tools.Send(ctx, factory, bridge.Text(bridge.PortYAMLToJSON, input), ""), nil
}

// ProvideExtendedInfo implements the ExtendedHelpProvider interface
func (t *YAMLToJSONTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		WhenToUse: "Use when YAML (Kubernetes manifests, CI config, compose files) must be fed to something that only reads JSON.",
		Examples: []tools.ToolExample{
			{
				Description:    "Convert a mapping",
				Arguments:      map[string]any{"input": "name: Alice\nage: 30\n"},
				ExpectedResult: "{\n  \"name\": \"Alice\",\n  \"age\": 30\n}",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "YAML parse/convert error (line 2, col 1): found character that cannot start any token",
				Solution: "YAML does not allow tabs for indentation. Replace them with spaces.",
			},
			{
				Problem:  "YAML parse/convert error (line L, col C): source contains multiple documents",
				Solution: "Split the stream at each --- marker and convert the documents one at a time.",
			},
			{
				Problem:  "YAML parse/convert error (line L, col C): mapping key \"x\" already defined at [l:c]",
				Solution: "A mapping repeats a key. Remove or rename the duplicate.",
			},
		},
	}
}

// parseInput reads the required input argument. An empty string is valid input.
func parseInput(args map[string]any) (string, error) {
	raw, ok := args["input"]
	if !ok {
		return "", fmt.Errorf("missing required parameter: input")
	}
	input, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("input must be a string, got %T", raw)
	}
	return input, nil
}
