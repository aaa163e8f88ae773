package ports_test

import (
	"errors"
	"testing"

	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	msg, err := ports.Decode([]byte(`{"port":"jsonToYaml","value":"{\"a\":1}","id":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, bridge.PortJSONToYAML, msg.Port)
	assert.Equal(t, `{"a":1}`, msg.Text())
	assert.Equal(t, "42", msg.ID)
}

func TestDecode_NullAndMissingValue(t *testing.T) {
	for _, frame := range []string{
		`{"port":"copyToClipboard","value":null}`,
		`{"port":"copyToClipboard"}`,
	} {
		msg, err := ports.Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Nil(t, msg.Value, frame)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":      `{port`,
		"missing port":  `{"value":"x"}`,
		"numeric value": `{"port":"jsonToYaml","value":3}`,
		"object value":  `{"port":"jsonToYaml","value":{"a":1}}`,
	}
	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ports.Decode([]byte(frame))
			require.Error(t, err)
		})
	}

	_, err := ports.Decode([]byte(`{"port":"  "}`))
	assert.True(t, errors.Is(err, ports.ErrMissingPort))
}

func TestEncode(t *testing.T) {
	frame, err := ports.Encode(bridge.Text(bridge.PortOnYAMLToJSON, "{\n  \"a\": \"<b>\"\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"port":"onYamlToJson","value":"{\n  \"a\": \"<b>\"\n}"}`, string(frame))

	frame, err = ports.Encode(bridge.Message{Port: bridge.PortOnError, ID: "7"})
	require.NoError(t, err)
	assert.Equal(t, `{"port":"onError","value":null,"id":"7"}`, string(frame))
}

func TestInvalidFrame(t *testing.T) {
	msg := ports.InvalidFrame(ports.ErrMissingPort)
	assert.Equal(t, bridge.PortOnError, msg.Port)
	assert.Equal(t, "Invalid port message: missing port", msg.Text())
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example/"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://127.0.0.1", true},
		{"http://[::1]:8080", true},
		{"https://app.example", true},
		{"https://APP.example", true},
		{"http://app.example", false},
		{"http://localhost.evil.example", false},
		{"https://evil.example", false},
		{"file://localhost", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ports.OriginAllowed(tt.origin, allowed), tt.origin)
	}

	assert.True(t, ports.OriginAllowed("https://anything.example", []string{"*"}))
}
