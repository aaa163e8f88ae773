package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/config"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"":        logrus.WarnLevel,
		"debug":   logrus.DebugLevel,
		" INFO ":  logrus.InfoLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.WarnLevel,
	}
	for value, want := range tests {
		restore := testutils.WithEnv(t, "LOG_LEVEL", value)
		assert.Equal(t, want, parseLogLevel(), value)
		restore()
	}
}

func newTestStore(t *testing.T, content string) *config.Store {
	t.Helper()
	for _, key := range []string{config.ClipboardEnvVar, config.YAMLIndentEnvVar, config.MaxInputBytesEnvVar} {
		t.Cleanup(testutils.WithEnv(t, key, ""))
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	store, err := config.NewStore(path, testutils.CreateTestLogger())
	require.NoError(t, err)
	return store
}

func TestNewFactory_UsesConfig(t *testing.T) {
	store := newTestStore(t, "clipboard:\n  backend: memory\nyaml:\n  indent: 4\nmax_input_bytes: 64\n")
	factory := newFactory(store, testutils.CreateTestLogger())

	rec := bridge.NewRecorder()
	factory(rec).Handle(context.Background(), bridge.Text(bridge.PortJSONToYAML, `{"a": {"b": 1}}`))
	msg, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "a:\n    b: 1\n", msg.Text())

	factory(rec).Handle(context.Background(), bridge.Text(bridge.PortYAMLToJSON, string(bytes.Repeat([]byte("a"), 65))))
	msg, _ = rec.Last()
	assert.True(t, msg.IsError())
	assert.Contains(t, msg.Text(), "limit is 64")
}

func TestNewFactory_MemoryClipboardAcceptsCopies(t *testing.T) {
	store := newTestStore(t, "clipboard:\n  backend: memory\n")
	factory := newFactory(store, testutils.CreateTestLogger())

	for _, text := range []*string{ptr("kept"), nil} {
		rec := bridge.NewRecorder()
		factory(rec).CopyToClipboard(context.Background(), text)
		assert.Empty(t, rec.Messages())
	}
}

func ptr(s string) *string { return &s }

func TestNewFactory_NoneBackendFails(t *testing.T) {
	store := newTestStore(t, "clipboard:\n  backend: none\n")
	factory := newFactory(store, testutils.CreateTestLogger())

	rec := bridge.NewRecorder()
	text := "x"
	factory(rec).CopyToClipboard(context.Background(), &text)
	msg, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, bridge.ClipboardFailedMessage, msg.Text())
}

func TestCreateAuthMiddleware(t *testing.T) {
	mw := createAuthMiddleware("secret", testutils.CreateTestLogger())

	tests := []struct {
		name   string
		header map[string]string
		reason string
	}{
		{"valid token", map[string]string{"Authorization": "Bearer secret"}, ""},
		{"missing token", nil, "missing or invalid bearer token"},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, "missing or invalid bearer token"},
		{"wrong scheme", map[string]string{"Authorization": "Basic secret"}, "missing or invalid bearer token"},
		{"foreign origin", map[string]string{"Authorization": "Bearer secret", "Origin": "https://evil.example"}, "origin not allowed"},
		{"local origin", map[string]string{"Authorization": "Bearer secret", "Origin": "http://localhost:3000"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/http", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			ctx := mw(context.Background(), req)
			reason, _ := ctx.Value(rejectedKey{}).(string)
			assert.Equal(t, tt.reason, reason)
		})
	}

	open := createAuthMiddleware("", testutils.CreateTestLogger())
	ctx := open(context.Background(), httptest.NewRequest("POST", "/http", nil))
	assert.Nil(t, ctx.Value(rejectedKey{}))
}

func TestIsValidProtocolVersion(t *testing.T) {
	assert.True(t, isValidProtocolVersion("2025-06-18"))
	assert.True(t, isValidProtocolVersion("2024-11-05"))
	assert.False(t, isValidProtocolVersion("1999-01-01"))
}

func TestTimeoutSessionManager(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewTimeoutSessionManager(time.Minute, testutils.CreateTestLogger())
	m.now = func() time.Time { return now }

	id := m.Generate()
	assert.Equal(t, 1, m.Active())
	terminated, err := m.Validate(id)
	require.NoError(t, err)
	assert.False(t, terminated)

	now = now.Add(2 * time.Minute)
	terminated, err = m.Validate(id)
	require.NoError(t, err)
	assert.True(t, terminated)

	_, err = m.Validate("")
	assert.Error(t, err)
	_, err = m.Validate("unknown")
	assert.Error(t, err)

	other := m.Generate()
	notAllowed, err := m.Terminate(other)
	require.NoError(t, err)
	assert.False(t, notAllowed)
	_, err = m.Validate(other)
	assert.Error(t, err)
	assert.Zero(t, m.Active())

	// terminating twice is harmless
	_, err = m.Terminate(other)
	require.NoError(t, err)
	assert.Zero(t, m.Active())
}

func TestToolHandler_RecordsRejection(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), testutils.CreateTestFactory(&clipboard.Memory{}))
	rt := &runtime{logger: testutils.CreateTestLogger()}

	handler := toolHandler("json_to_yaml", "http", rt)
	ctx := context.WithValue(context.Background(), rejectedKey{}, "origin not allowed")

	result, err := handler(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Unauthorised: origin not allowed", testutils.ResultText(t, result))
}

func TestToolHandler_RunsTool(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), testutils.CreateTestFactory(&clipboard.Memory{}))
	rt := &runtime{logger: testutils.CreateTestLogger()}

	req := mcp.CallToolRequest{}
	req.Params.Name = "yaml_to_json"
	req.Params.Arguments = map[string]any{"input": "a: [1, 2]"}

	result, err := toolHandler("yaml_to_json", "stdio", rt)(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "{\n  \"a\": [\n    1,\n    2\n  ]\n}", testutils.ResultText(t, result))

	req.Params.Arguments = map[string]any{"input": "a:\n\tb: 1\n"}
	result, err = toolHandler("yaml_to_json", "stdio", rt)(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, resultText(result), testutils.ResultText(t, result))
}

func TestToolHandler_PassesArgumentsAndResult(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), testutils.CreateTestFactory(&clipboard.Memory{}))
	mock := testutils.NewMockTool("handler_mock").WithResult(mcp.NewToolResultError("bad input"))
	registry.Register(mock)
	rt := &runtime{logger: testutils.CreateTestLogger()}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"input": "x"}
	result, err := toolHandler("handler_mock", "http", rt)(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "bad input", testutils.ResultText(t, result))

	// missing arguments reach the tool as an empty map
	_, err = toolHandler("handler_mock", "http", rt)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)

	require.Len(t, mock.Calls(), 2)
	assert.Equal(t, map[string]any{"input": "x"}, mock.Calls()[0])
	assert.Empty(t, mock.Calls()[1])
}

func TestToolHandler_ExecuteError(t *testing.T) {
	registry.Init(testutils.CreateTestLogger(), testutils.CreateTestFactory(&clipboard.Memory{}))
	registry.Register(testutils.NewMockTool("failing_mock").WithError(errors.New("exploded")))
	rt := &runtime{logger: testutils.CreateTestLogger()}

	_, err := toolHandler("failing_mock", "stdio", rt)(context.Background(), mcp.CallToolRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
}

func TestHandleConfigValidate(t *testing.T) {
	for _, key := range []string{config.ClipboardEnvVar, config.YAMLIndentEnvVar, config.MaxInputBytesEnvVar, config.AllowedOriginsEnvVar} {
		t.Cleanup(testutils.WithEnv(t, key, ""))
	}
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("clipboard:\n  backend: memory\nports:\n  listen: 127.0.0.1:9000\n"), 0600))
	var out bytes.Buffer
	require.NoError(t, handleConfigValidate(&out, good))
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "Clipboard backend: memory")
	assert.Contains(t, out.String(), "Ports: 127.0.0.1:9000/ports")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("yaml:\n  indent: 20\n"), 0600))
	out.Reset()
	require.Error(t, handleConfigValidate(&out, bad))
	assert.Contains(t, out.String(), "yaml.indent must be between 2 and 9")

	out.Reset()
	require.NoError(t, handleConfigValidate(&out, filepath.Join(dir, "missing.yaml")))
	assert.Contains(t, out.String(), "defaults apply")
}

func TestVersionCommand(t *testing.T) {
	app := newApp(testutils.CreateTestLogger())
	var out bytes.Buffer
	app.Writer = &out

	require.NoError(t, app.Run(context.Background(), []string{"yaml-bridge", "version"}))
	assert.Contains(t, out.String(), "yaml-bridge version "+Version)
	assert.Contains(t, out.String(), "Commit: ")
}
