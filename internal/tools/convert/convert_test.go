package convert_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sammcj/yaml-bridge/internal/tools/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, tool tools.Tool, args map[string]any) (string, bool) {
	t.Helper()
	result, err := tool.Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		testutils.CreateTestFactory(&clipboard.Memory{}), args)
	require.NoError(t, err)
	return testutils.ResultText(t, result), result.IsError
}

func TestJSONToYAMLTool_Definition(t *testing.T) {
	def := (&convert.JSONToYAMLTool{}).Definition()
	assert.Equal(t, "json_to_yaml", def.Name)
	assert.Contains(t, def.InputSchema.Required, "input")
}

func TestJSONToYAMLTool_Converts(t *testing.T) {
	text, isError := execute(t, &convert.JSONToYAMLTool{}, map[string]any{"input": `{"b": 1, "a": [true, null]}`})

	assert.False(t, isError)
	assert.Equal(t, "b: 1\na:\n  - true\n  - null\n", text)
}

func TestJSONToYAMLTool_MalformedInput(t *testing.T) {
	text, isError := execute(t, &convert.JSONToYAMLTool{}, map[string]any{"input": "{bad"})

	assert.True(t, isError)
	assert.True(t, strings.HasPrefix(text, "JSON parse/convert error: "), text)
}

func TestJSONToYAMLTool_MissingInput(t *testing.T) {
	_, err := (&convert.JSONToYAMLTool{}).Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		testutils.CreateTestFactory(nil), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

func TestYAMLToJSONTool_Converts(t *testing.T) {
	def := (&convert.YAMLToJSONTool{}).Definition()
	assert.Equal(t, "yaml_to_json", def.Name)

	text, isError := execute(t, &convert.YAMLToJSONTool{}, map[string]any{"input": "name: Alice\nage: 30\n"})

	assert.False(t, isError)
	assert.Equal(t, "{\n  \"name\": \"Alice\",\n  \"age\": 30\n}", text)
}

func TestYAMLToJSONTool_ReportsPosition(t *testing.T) {
	text, isError := execute(t, &convert.YAMLToJSONTool{}, map[string]any{"input": "a:\n\tb: 1\n"})

	assert.True(t, isError)
	assert.True(t, strings.HasPrefix(text, "YAML parse/convert error (line 2, col 1): "), text)
}

func TestYAMLToJSONTool_RejectsMultipleDocuments(t *testing.T) {
	text, isError := execute(t, &convert.YAMLToJSONTool{}, map[string]any{"input": "a: 1\n---\nb: 2\n"})

	assert.True(t, isError)
	assert.Equal(t, "YAML parse/convert error (line 2, col 1): source contains multiple documents", text)
}

func TestYAMLToJSONTool_NonStringInput(t *testing.T) {
	_, err := (&convert.YAMLToJSONTool{}).Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		testutils.CreateTestFactory(nil), map[string]any{"input": 12})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input must be a string")
}

func TestConvert_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := (&convert.JSONToYAMLTool{}).Execute(ctx, testutils.CreateTestLogger(),
		testutils.CreateTestFactory(nil), map[string]any{"input": "{}"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, testutils.ResultText(t, result), "Request cancelled")
}

func TestConvert_ExtendedHelp(t *testing.T) {
	for _, tool := range []tools.Tool{&convert.JSONToYAMLTool{}, &convert.YAMLToJSONTool{}} {
		provider, ok := tool.(tools.ExtendedHelpProvider)
		require.True(t, ok, tool.Definition().Name)

		info := provider.ProvideExtendedInfo()
		require.NotEmpty(t, info.Examples)
		text, isError := execute(t, tool, info.Examples[0].Arguments)
		assert.False(t, isError)
		assert.Equal(t, info.Examples[0].ExpectedResult, text)
	}
}
