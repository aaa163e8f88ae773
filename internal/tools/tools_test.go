package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/stretchr/testify/assert"
)

func TestSend_SuccessReply(t *testing.T) {
	factory := testutils.CreateTestFactory(nil)

	result := tools.Send(context.Background(), factory, bridge.Text(bridge.PortJSONToYAML, `{"a": 1}`), "unused")

	assert.False(t, result.IsError)
	assert.Equal(t, "a: 1\n", testutils.ResultText(t, result))
}

func TestSend_ErrorReply(t *testing.T) {
	factory := testutils.CreateTestFactory(nil)

	result := tools.Send(context.Background(), factory, bridge.Text(bridge.PortJSONToYAML, "{bad"), "unused")

	assert.True(t, result.IsError)
	assert.Contains(t, testutils.ResultText(t, result), "JSON parse/convert error")
}

func TestSend_NoReplyUsesSuccessText(t *testing.T) {
	factory := testutils.CreateTestFactory(&clipboard.Memory{})

	result := tools.Send(context.Background(), factory, bridge.Text(bridge.PortCopyToClipboard, "x"), "done")

	assert.False(t, result.IsError)
	assert.Equal(t, "done", testutils.ResultText(t, result))
}

func TestSend_ClipboardFailure(t *testing.T) {
	factory := testutils.CreateTestFactory(&clipboard.Memory{Err: errors.New("locked")})

	result := tools.Send(context.Background(), factory, bridge.Text(bridge.PortCopyToClipboard, "x"), "done")

	assert.True(t, result.IsError)
	assert.Equal(t, bridge.ClipboardFailedMessage, testutils.ResultText(t, result))
}
