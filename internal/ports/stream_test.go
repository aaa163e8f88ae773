package ports_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/ports"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sammcj/yaml-bridge/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a strings.Builder safe for concurrent writes
type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func replies(t *testing.T, output string) map[string]bridge.Message {
	t.Helper()
	out := make(map[string]bridge.Message)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		msg, err := ports.Decode(scanner.Bytes())
		require.NoError(t, err, scanner.Text())
		out[msg.ID] = msg
	}
	return out
}

func TestStream_Serve(t *testing.T) {
	clip := &clipboard.Memory{}
	input := strings.Join([]string{
		`{"port":"jsonToYaml","value":"{\"a\":1}","id":"1"}`,
		`{"port":"yamlToJson","value":"a: 1","id":"2"}`,
		`{"port":"jsonToYaml","value":"{bad","id":"3"}`,
		``,
		`{"port":"copyToClipboard","value":"copied","id":"4"}`,
		`{"port":"yamlToJsn","value":"x","id":"5"}`,
	}, "\n") + "\n"

	var out syncBuffer
	stream := ports.NewStream(strings.NewReader(input), &out, testutils.CreateTestFactory(clip), testutils.CreateTestLogger())
	require.NoError(t, stream.Serve(context.Background()))

	got := replies(t, out.String())
	require.Len(t, got, 4)

	assert.Equal(t, bridge.PortOnJSONToYAML, got["1"].Port)
	assert.Equal(t, "a: 1\n", got["1"].Text())

	assert.Equal(t, bridge.PortOnYAMLToJSON, got["2"].Port)
	assert.Equal(t, "{\n  \"a\": 1\n}", got["2"].Text())

	assert.Equal(t, bridge.PortOnError, got["3"].Port)
	assert.True(t, strings.HasPrefix(got["3"].Text(), "JSON parse/convert error: "))

	assert.Equal(t, bridge.PortOnError, got["5"].Port)
	assert.Contains(t, got["5"].Text(), "did you mean yamlToJson?")

	assert.Equal(t, "copied", clip.Text())
}

func TestStream_InvalidFrame(t *testing.T) {
	var out syncBuffer
	stream := ports.NewStream(strings.NewReader("not json\n"), &out, testutils.CreateTestFactory(nil), testutils.CreateTestLogger())
	require.NoError(t, stream.Serve(context.Background()))

	msg, err := ports.Decode([]byte(strings.TrimSpace(out.String())))
	require.NoError(t, err)
	assert.Equal(t, bridge.PortOnError, msg.Port)
	assert.True(t, strings.HasPrefix(msg.Text(), "Invalid port message: "), msg.Text())
}

func TestStream_TagsTransport(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	factory := func(sink bridge.Sink) *bridge.Bridge {
		return bridge.New(bridge.SinkFunc(func(ctx context.Context, msg bridge.Message) error {
			mu.Lock()
			seen = append(seen, telemetry.Transport(ctx))
			mu.Unlock()
			return sink.Send(ctx, msg)
		}), nil)
	}

	var out syncBuffer
	stream := ports.NewStream(strings.NewReader(`{"port":"jsonToYaml","value":"1"}`+"\n"), &out, factory, testutils.CreateTestLogger())
	require.NoError(t, stream.Serve(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{telemetry.TransportPorts}, seen)
}

func TestStream_AssignsIDs(t *testing.T) {
	input := `{"port":"jsonToYaml","value":"1"}` + "\n" + `{"port":"jsonToYaml","value":"2"}` + "\n"

	var out syncBuffer
	stream := ports.NewStream(strings.NewReader(input), &out, testutils.CreateTestFactory(nil), testutils.CreateTestLogger())
	require.NoError(t, stream.Serve(context.Background()))

	got := replies(t, out.String())
	require.Len(t, got, 2)
	var values []string
	for id, msg := range got {
		assert.NotEmpty(t, id)
		values = append(values, msg.Text())
	}
	sort.Strings(values)
	assert.Equal(t, []string{"1\n", "2\n"}, values)
}

func TestStream_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	var out syncBuffer
	stream := ports.NewStream(pr, &out, testutils.CreateTestFactory(nil), testutils.CreateTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestStream_SendWriteFailure(t *testing.T) {
	pr, pw := io.Pipe()
	_ = pr.Close()

	stream := ports.NewStream(strings.NewReader(""), pw, testutils.CreateTestFactory(nil), testutils.CreateTestLogger())
	err := stream.Send(context.Background(), bridge.Text(bridge.PortOnError, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write message")
}
