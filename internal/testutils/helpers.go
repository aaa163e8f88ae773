// Package testutils holds helpers shared by package tests.
package testutils

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sirupsen/logrus"
)

// CreateTestLogger creates a logger that discards output
func CreateTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// CreateTestContext creates a context suitable for testing
func CreateTestContext() context.Context {
	return context.Background()
}

// CreateTestFactory returns a bridge factory whose bridges share clip
func CreateTestFactory(clip clipboard.Writer) bridge.Factory {
	logger := CreateTestLogger()
	return func(sink bridge.Sink) *bridge.Bridge {
		return bridge.New(sink, clip, bridge.WithLogger(logger))
	}
}

// WithEnv sets an environment variable for the duration of a test and
// returns a function restoring the previous value. An empty value unsets it.
func WithEnv(t *testing.T, key, value string) func() {
	t.Helper()
	previous, existed := os.LookupEnv(key)

	var err error
	if value == "" {
		err = os.Unsetenv(key)
	} else {
		err = os.Setenv(key, value)
	}
	if err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}

	return func() {
		if existed {
			_ = os.Setenv(key, previous)
		} else {
			_ = os.Unsetenv(key)
		}
	}
}

// ResultText returns the text of the first content item of a tool result
func ResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected non-nil tool result")
	}
	if len(result.Content) == 0 {
		t.Fatal("Expected content in tool result")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}
