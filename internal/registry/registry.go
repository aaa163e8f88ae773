package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sirupsen/logrus"
)

// DisabledToolsEnvVar lists tool names, comma separated, that are never exposed
const DisabledToolsEnvVar = "DISABLED_TOOLS"

var (
	mu sync.RWMutex

	// toolRegistry is a map of tool names to tool implementations
	toolRegistry = make(map[string]tools.Tool)

	// disabledTools is a set of tool names to disable
	disabledTools = make(map[string]bool)

	// logger is the shared logger instance
	logger *logrus.Logger

	// factory builds the bridge each tool call talks to
	factory bridge.Factory
)

// Init initialises the registry and shared resources
func Init(l *logrus.Logger, f bridge.Factory) {
	mu.Lock()
	logger = l
	factory = f
	mu.Unlock()

	parseDisabledTools()
}

// parseDisabledTools reads DISABLED_TOOLS. Names are compared after normalisation.
func parseDisabledTools() {
	mu.Lock()
	defer mu.Unlock()

	disabledTools = make(map[string]bool)
	for tool := range strings.SplitSeq(os.Getenv(DisabledToolsEnvVar), ",") {
		tool = normaliseName(tool)
		if tool == "" {
			continue
		}
		disabledTools[tool] = true
		if logger != nil {
			logger.WithField("tool", tool).Debug("Tool disabled")
		}
	}

	if logger != nil && len(disabledTools) > 0 {
		logger.WithField("count", len(disabledTools)).Debug("Parsed disabled tools from environment")
	}
}

// normaliseName lowercases name and treats hyphens and underscores alike
func normaliseName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

func isDisabled(name string) bool {
	return disabledTools[normaliseName(name)]
}

// Register adds a tool implementation to the registry. Tools register from
// init, before Init runs, so disablement is checked on lookup.
func Register(tool tools.Tool) {
	mu.Lock()
	defer mu.Unlock()

	toolName := tool.Definition().Name
	toolRegistry[toolName] = tool
	if logger != nil {
		logger.WithField("tool", toolName).Debug("Tool registered")
	}
}

// GetTool retrieves a tool by name, returns false if disabled
func GetTool(name string) (tools.Tool, bool) {
	mu.RLock()
	defer mu.RUnlock()

	if isDisabled(name) {
		return nil, false
	}
	tool, ok := toolRegistry[name]
	return tool, ok
}

// GetEnabledTools returns all tools that are enabled for MCP server registration
func GetEnabledTools() map[string]tools.Tool {
	mu.RLock()
	defer mu.RUnlock()

	filtered := make(map[string]tools.Tool)
	for name, tool := range toolRegistry {
		if isDisabled(name) {
			continue
		}
		filtered[name] = tool
	}
	return filtered
}

// GetEnabledToolNames returns a sorted list of enabled tool names
func GetEnabledToolNames() []string {
	mu.RLock()
	defer mu.RUnlock()

	var names []string
	for name := range toolRegistry {
		if isDisabled(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolNamesWithExtendedHelp returns a sorted list of enabled tool names that provide extended help
func GetToolNamesWithExtendedHelp() []string {
	mu.RLock()
	defer mu.RUnlock()

	var names []string
	for name, tool := range toolRegistry {
		if isDisabled(name) {
			continue
		}
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// GetFactory returns the shared bridge factory
func GetFactory() bridge.Factory {
	mu.RLock()
	defer mu.RUnlock()
	return factory
}
