package bridge_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		context  string
		err      error
		expected string
	}{
		{
			name:     "no failure value",
			context:  bridge.ContextJSON,
			err:      nil,
			expected: "JSON parse/convert error.",
		},
		{
			name:     "plain error",
			context:  bridge.ContextJSON,
			err:      errors.New("unexpected token"),
			expected: "JSON parse/convert error: unexpected token",
		},
		{
			name:     "positioned codec error",
			context:  bridge.ContextYAML,
			err:      &codec.Error{Format: codec.FormatYAML, Op: codec.OpParse, Line: 2, Col: 1, Msg: "tab character"},
			expected: "YAML parse/convert error (line 2, col 1): tab character",
		},
		{
			name:     "codec error with line only",
			context:  bridge.ContextYAML,
			err:      &codec.Error{Format: codec.FormatYAML, Op: codec.OpParse, Line: 2, Msg: "bad"},
			expected: "YAML parse/convert error: bad",
		},
		{
			name:     "wrapped codec error",
			context:  bridge.ContextYAML,
			err:      fmt.Errorf("outer: %w", &codec.Error{Line: 5, Col: 9, Msg: "inner"}),
			expected: "YAML parse/convert error (line 5, col 9): inner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bridge.FormatError(tt.context, tt.err))
		})
	}
}

func TestNewErrorReport_Fields(t *testing.T) {
	report := bridge.NewErrorReport(bridge.ContextYAML, &codec.Error{Line: 3, Col: 4, Msg: "oops"})

	assert.Equal(t, bridge.ContextYAML, report.Context)
	assert.Equal(t, "oops", report.Message)
	require.NotNil(t, report.Line)
	require.NotNil(t, report.Col)
	assert.Equal(t, 3, *report.Line)
	assert.Equal(t, 4, *report.Col)

	report = bridge.NewErrorReport(bridge.ContextJSON, errors.New("plain"))
	assert.Nil(t, report.Line)
	assert.Nil(t, report.Col)
	assert.False(t, report.Empty)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "yaml_parse", bridge.ErrorType(&codec.Error{Format: codec.FormatYAML, Op: codec.OpParse}))
	assert.Equal(t, "json_serialize", bridge.ErrorType(fmt.Errorf("wrapped: %w", &codec.Error{Format: codec.FormatJSON, Op: codec.OpSerialize})))
	assert.Equal(t, bridge.ErrorTypeInternal, bridge.ErrorType(errors.New("boom")))
}
