// Package cli runs yaml-bridge tools straight from the command line, without
// an MCP client. Tools are looked up in the registry and executed in-process.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sahilm/fuzzy"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how tool results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ErrToolFailed is returned when a tool produced an error result.
var ErrToolFailed = errors.New("tool returned an error")

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger  *logrus.Logger
	factory bridge.Factory
	output  OutputFormat

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a Runner writing to the process's standard streams.
func NewRunner(logger *logrus.Logger, factory bridge.Factory, output OutputFormat) *Runner {
	return &Runner{
		logger:  logger,
		factory: factory,
		output:  output,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// ListTools prints all enabled tools with the first line of their description.
// Tools with extended help are marked with an asterisk.
func (r *Runner) ListTools() error {
	enabled := registry.GetEnabledTools()
	names := registry.GetEnabledToolNames()
	extended := registry.GetToolNamesWithExtendedHelp()

	if r.output == OutputJSON {
		type entry struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			ExtendedHelp bool   `json:"extended_help"`
		}
		out := make([]entry, 0, len(names))
		for _, name := range names {
			out = append(out, entry{
				Name:         name,
				Description:  firstLine(enabled[name].Definition().Description),
				ExtendedHelp: slices.Contains(extended, name),
			})
		}
		return writeJSON(r.Stdout, out)
	}

	w := tabwriter.NewWriter(r.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		mark := ""
		if slices.Contains(extended, name) {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "%s%s\t%s\n", name, mark, firstLine(enabled[name].Definition().Description))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(extended) > 0 {
		_, _ = fmt.Fprintln(r.Stdout, "\n* examples and troubleshooting: yaml-bridge cli help <tool>")
	}
	return nil
}

// HelpTool prints the parameters and extended help of a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, err := r.lookup(name)
	if err != nil {
		return err
	}
	def := tool.Definition()

	var extended *tools.ExtendedHelp
	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		extended = provider.ProvideExtendedInfo()
	}

	if r.output == OutputJSON {
		return writeJSON(r.Stdout, struct {
			Tool     mcp.Tool            `json:"tool"`
			Extended *tools.ExtendedHelp `json:"extended_help,omitempty"`
		}{def, extended})
	}

	_, _ = fmt.Fprintf(r.Stdout, "Tool: %s\n\n%s\n\n", def.Name, def.Description)

	props := def.InputSchema.Properties
	if len(props) == 0 {
		_, _ = fmt.Fprintln(r.Stdout, "No parameters.")
	} else {
		_, _ = fmt.Fprintln(r.Stdout, "Parameters:")
		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(r.Stdout, 0, 0, 2, ' ', 0)
		for _, pName := range names {
			pMap, ok := props[pName].(map[string]any)
			if !ok {
				continue
			}
			pType, _ := pMap["type"].(string)
			pDesc, _ := pMap["description"].(string)
			reqMark := ""
			if slices.Contains(def.InputSchema.Required, pName) {
				reqMark = " (required)"
			}
			_, _ = fmt.Fprintf(w, "  --%s\t%s\t%s%s\n", toFlagName(pName), pType, firstLine(pDesc), reqMark)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if extended == nil {
		return nil
	}
	if extended.WhenToUse != "" {
		_, _ = fmt.Fprintf(r.Stdout, "\nWhen to use:\n  %s\n", extended.WhenToUse)
	}
	if len(extended.Examples) > 0 {
		_, _ = fmt.Fprintln(r.Stdout, "\nExamples:")
		for _, ex := range extended.Examples {
			args, _ := json.Marshal(ex.Arguments)
			_, _ = fmt.Fprintf(r.Stdout, "  %s\n    yaml-bridge cli run %s '%s'\n", ex.Description, def.Name, args)
		}
	}
	if len(extended.Troubleshooting) > 0 {
		_, _ = fmt.Fprintln(r.Stdout, "\nTroubleshooting:")
		for _, tip := range extended.Troubleshooting {
			_, _ = fmt.Fprintf(r.Stdout, "  %s\n    %s\n", tip.Problem, tip.Solution)
		}
	}
	return nil
}

// RunTool executes a tool by name. args can be a JSON object, --key=value or
// --key value flags, or a mix (flags take precedence). A flag value of "-"
// is read from stdin and "@path" from a file.
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	tool, err := r.lookup(name)
	if err != nil {
		return err
	}

	params, err := r.parseArgs(args, tool.Definition())
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}

	ctx = telemetry.WithTransport(ctx, telemetry.TransportCLI)
	result, err := tool.Execute(ctx, r.logger, r.factory, params)
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}
	return r.renderResult(result)
}

// lookup resolves name, accepting kebab-case for snake_case tool names.
func (r *Runner) lookup(name string) (tools.Tool, error) {
	if tool, ok := registry.GetTool(name); ok {
		return tool, nil
	}
	if tool, ok := registry.GetTool(strings.ReplaceAll(name, "-", "_")); ok {
		return tool, nil
	}

	names := registry.GetEnabledToolNames()
	if matches := fuzzy.Find(strings.ReplaceAll(name, "-", "_"), names); len(matches) > 0 {
		return nil, fmt.Errorf("unknown tool: %s (did you mean %s?)", name, matches[0].Str)
	}
	return nil, fmt.Errorf("unknown tool: %s (run 'yaml-bridge cli list' to see available tools)", name)
}

// parseArgs converts CLI arguments into tool parameters.
func (r *Runner) parseArgs(args []string, def mcp.Tool) (map[string]any, error) {
	params := make(map[string]any)
	flagToParam := make(map[string]string, len(def.InputSchema.Properties))
	for pName := range def.InputSchema.Properties {
		flagToParam[toFlagName(pName)] = pName
	}

	var fromJSON map[string]any
	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case strings.HasPrefix(arg, "{"):
			if err := json.Unmarshal([]byte(arg), &fromJSON); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
		case strings.HasPrefix(arg, "--"):
			flag, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			if !found {
				i++
				if i >= len(args) {
					return nil, fmt.Errorf("flag --%s requires a value", flag)
				}
				value = args[i]
			}
			resolved, err := r.resolveValue(value)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", flag, err)
			}
			pName, ok := flagToParam[flag]
			if !ok {
				pName = strings.ReplaceAll(flag, "-", "_")
			}
			params[pName] = resolved
		default:
			return nil, fmt.Errorf("unexpected argument: %s (use --key=value flags or pass a JSON object)", arg)
		}
	}

	for k, v := range fromJSON {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}
	return params, nil
}

// resolveValue expands "-" to stdin and "@path" to the file's contents.
func (r *Runner) resolveValue(value string) (string, error) {
	switch {
	case value == "-":
		data, err := io.ReadAll(r.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case strings.HasPrefix(value, "@") && len(value) > 1:
		data, err := os.ReadFile(value[1:])
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	}
	return value, nil
}

// renderResult prints a tool result. Error results go to stderr in red.
func (r *Runner) renderResult(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}

	if r.output == OutputJSON {
		if err := writeJSON(r.Stdout, result); err != nil {
			return err
		}
	} else {
		for _, content := range result.Content {
			text, ok := mcp.AsTextContent(content)
			if !ok {
				data, _ := json.MarshalIndent(content, "", "  ")
				_, _ = fmt.Fprintln(r.Stdout, string(data))
				continue
			}
			if result.IsError {
				_, _ = color.New(color.FgRed).Fprintln(r.Stderr, text.Text)
				continue
			}
			// conversions already end in a newline when they need one
			_, _ = fmt.Fprint(r.Stdout, text.Text)
			if !strings.HasSuffix(text.Text, "\n") {
				_, _ = fmt.Fprintln(r.Stdout)
			}
		}
	}

	if result.IsError {
		return ErrToolFailed
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func firstLine(s string) string {
	before, _, _ := strings.Cut(s, "\n")
	return before
}

// toFlagName converts camelCase or snake_case to kebab-case for CLI flags.
func toFlagName(s string) string {
	s = strings.ReplaceAll(s, "_", "-")
	var out strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out.WriteByte('-')
			}
			out.WriteRune(c + 'a' - 'A')
			continue
		}
		out.WriteRune(c)
	}
	return out.String()
}
