package registry_test

import (
	"testing"

	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Init(t *testing.T) {
	logger := testutils.CreateTestLogger()
	registry.Init(logger, testutils.CreateTestFactory(&clipboard.Memory{}))

	assert.Same(t, logger, registry.GetLogger())
	assert.NotNil(t, registry.GetFactory())
}

func TestRegistry_RegisterAndGetTool(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), nil)
	registry.Register(testutils.NewMockTool("test-tool"))

	tool, ok := registry.GetTool("test-tool")
	require.True(t, ok)
	assert.Equal(t, "test-tool", tool.Definition().Name)
}

func TestRegistry_GetTool_NotFound(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), nil)

	_, ok := registry.GetTool("non-existent-tool")
	assert.False(t, ok)
}

func TestRegistry_DisabledTools(t *testing.T) {
	defer testutils.WithEnv(t, registry.DisabledToolsEnvVar, "disabled-tool,another-disabled-tool")()

	registry.Init(testutils.CreateTestLogger(), nil)
	registry.Register(testutils.NewMockTool("enabled-tool"))
	registry.Register(testutils.NewMockTool("disabled-tool"))

	_, ok := registry.GetTool("enabled-tool")
	assert.True(t, ok)
	_, ok = registry.GetTool("disabled-tool")
	assert.False(t, ok)

	enabled := registry.GetEnabledTools()
	assert.Contains(t, enabled, "enabled-tool")
	assert.NotContains(t, enabled, "disabled-tool")
	assert.NotContains(t, registry.GetEnabledToolNames(), "disabled-tool")
}

func TestRegistry_DisabledTools_WithSpacesAndUnderscores(t *testing.T) {
	defer testutils.WithEnv(t, registry.DisabledToolsEnvVar, " Spaced-Tool , other ")()

	registry.Init(testutils.CreateTestLogger(), nil)
	registry.Register(testutils.NewMockTool("spaced_tool"))

	_, ok := registry.GetTool("spaced_tool")
	assert.False(t, ok)
}

func TestRegistry_DisabledTools_Empty(t *testing.T) {
	defer testutils.WithEnv(t, registry.DisabledToolsEnvVar, "")()

	registry.Init(testutils.CreateTestLogger(), nil)
	registry.Register(testutils.NewMockTool("always-on"))

	_, ok := registry.GetTool("always-on")
	assert.True(t, ok)
}

func TestRegistry_EnabledToolNamesSorted(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), nil)
	registry.Register(testutils.NewMockTool("zz-tool"))
	registry.Register(testutils.NewMockTool("aa-tool"))

	names := registry.GetEnabledToolNames()
	require.Contains(t, names, "aa-tool")
	require.Contains(t, names, "zz-tool")
	assert.IsIncreasing(t, names)
}
