package copytext_test

import (
	"errors"
	"testing"

	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/sammcj/yaml-bridge/internal/tools/copytext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyToClipboardTool_Definition(t *testing.T) {
	def := (&copytext.CopyToClipboardTool{}).Definition()

	assert.Equal(t, "copy_to_clipboard", def.Name)
	assert.Contains(t, def.InputSchema.Properties, "text")
	assert.NotContains(t, def.InputSchema.Required, "text")
}

func TestCopyToClipboardTool_CopiesText(t *testing.T) {
	clip := &clipboard.Memory{}
	tool := &copytext.CopyToClipboardTool{}

	result, err := tool.Execute(testutils.CreateTestContext(), testutils.CreateTestLogger(),
		testutils.CreateTestFactory(clip), map[string]any{"text": "héllo"})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, "Copied 5 characters to clipboard.", testutils.ResultText(t, result))
	assert.Equal(t, "héllo", clip.Text())
}

func TestCopyToClipboardTool_MissingTextClears(t *testing.T) {
	clip := &clipboard.Memory{}
	require.NoError(t, clip.WriteText(testutils.CreateTestContext(), "previous"))

	for _, args := range []map[string]any{{}, {"text": nil}} {
		result, err := (&copytext.CopyToClipboardTool{}).Execute(testutils.CreateTestContext(),
			testutils.CreateTestLogger(), testutils.CreateTestFactory(clip), args)
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "Copied 0 characters to clipboard.", testutils.ResultText(t, result))
		assert.Equal(t, "", clip.Text())
	}
}

func TestCopyToClipboardTool_Failure(t *testing.T) {
	clip := &clipboard.Memory{Err: errors.New("no display")}

	result, err := (&copytext.CopyToClipboardTool{}).Execute(testutils.CreateTestContext(),
		testutils.CreateTestLogger(), testutils.CreateTestFactory(clip), map[string]any{"text": "x"})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Equal(t, "Failed to copy to clipboard.", testutils.ResultText(t, result))
}

func TestCopyToClipboardTool_InvalidText(t *testing.T) {
	_, err := (&copytext.CopyToClipboardTool{}).Execute(testutils.CreateTestContext(),
		testutils.CreateTestLogger(), testutils.CreateTestFactory(&clipboard.Memory{}), map[string]any{"text": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text must be a string")
}
