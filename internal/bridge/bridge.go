// Package bridge connects a GUI application's message ports to a YAML codec
// and a clipboard.
//
// Every inbound request produces at most one outbound message: the result on
// the matching success port, or a formatted error on the shared error port.
// Failures never propagate to the caller. The only request that produces no
// message on success is a clipboard copy.
package bridge

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/codec"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Factory builds a bridge that replies to sink. Hosts call it once per
// connection or per call.
type Factory func(sink Sink) *Bridge

// Bridge routes inbound port messages to their handlers.
type Bridge struct {
	sink      Sink
	clipboard clipboard.Writer
	codec     *codec.Codec
	logger    *logrus.Logger

	wg sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCodec replaces the default codec.
func WithCodec(c *codec.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// New creates a Bridge that replies on sink and copies text with clip.
func New(sink Sink, clip clipboard.Writer, opts ...Option) *Bridge {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	b := &Bridge{
		sink:      sink,
		clipboard: clip,
		codec:     codec.New(),
		logger:    discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.clipboard == nil {
		b.clipboard = clipboard.Disabled{}
	}
	return b
}

// ConvertJSONToYAML converts input and replies on onJsonToYaml, or on onError
// with the "JSON parse/convert" context.
func (b *Bridge) ConvertJSONToYAML(ctx context.Context, input string) {
	b.convert(ctx, PortJSONToYAML, input, ContextJSON, PortOnJSONToYAML, b.codec.JSONToYAML)
}

// ConvertYAMLToJSON converts input and replies on onYamlToJson, or on onError
// with the "YAML parse/convert" context.
func (b *Bridge) ConvertYAMLToJSON(ctx context.Context, input string) {
	b.convert(ctx, PortYAMLToJSON, input, ContextYAML, PortOnYAMLToJSON, b.codec.YAMLToJSON)
}

func (b *Bridge) convert(ctx context.Context, port, input, label, replyPort string, fn func(string) (string, error)) {
	if ctx.Err() != nil {
		b.logger.WithField("port", port).Debug("Request abandoned before conversion")
		return
	}

	start := time.Now()
	ctx, span := telemetry.StartRequestSpan(ctx, port, RequestID(ctx), len(input))

	out, err := guard(func() (string, error) { return fn(input) })
	if err != nil {
		msg := FormatError(label, err)
		b.logger.WithFields(logrus.Fields{
			"port":        port,
			"input_bytes": len(input),
		}).WithError(err).Debug("Conversion failed")
		telemetry.EndRequestSpan(span, PortOnError, msg)
		telemetry.RecordRequest(ctx, port, false, time.Since(start))
		telemetry.RecordRequestError(ctx, port, ErrorType(err))
		b.emit(ctx, PortOnError, msg)
		return
	}

	b.logger.WithFields(logrus.Fields{
		"port":         port,
		"input_bytes":  len(input),
		"output_bytes": len(out),
	}).Debug("Conversion succeeded")
	telemetry.EndRequestSpan(span, replyPort, "")
	telemetry.RecordRequest(ctx, port, true, time.Since(start))
	b.emit(ctx, replyPort, out)
}

// CopyToClipboard writes text, or "" when text is nil, to the clipboard.
// Only a failure produces a message.
func (b *Bridge) CopyToClipboard(ctx context.Context, text *string) {
	if ctx.Err() != nil {
		b.logger.WithField("port", PortCopyToClipboard).Debug("Request abandoned before clipboard write")
		return
	}

	value := ""
	if text != nil {
		value = *text
	}

	start := time.Now()
	ctx, span := telemetry.StartRequestSpan(ctx, PortCopyToClipboard, RequestID(ctx), len(value))

	_, err := guard(func() (string, error) {
		return "", b.clipboard.WriteText(ctx, value)
	})
	if err != nil {
		b.logger.WithError(err).Warn("Clipboard write failed")
		telemetry.EndRequestSpan(span, PortOnError, ClipboardFailedMessage)
		telemetry.RecordRequest(ctx, PortCopyToClipboard, false, time.Since(start))
		telemetry.RecordRequestError(ctx, PortCopyToClipboard, ErrorTypeClipboard)
		b.emit(ctx, PortOnError, ClipboardFailedMessage)
		return
	}

	b.logger.WithField("length", len(value)).Debug("Copied text to clipboard")
	telemetry.EndRequestSpan(span, "", "")
	telemetry.RecordRequest(ctx, PortCopyToClipboard, true, time.Since(start))
}

// Handle routes msg to its handler and returns when the handler is done.
func (b *Bridge) Handle(ctx context.Context, msg Message) {
	if msg.ID != "" {
		ctx = WithRequestID(ctx, msg.ID)
	}

	switch msg.Port {
	case PortJSONToYAML:
		b.ConvertJSONToYAML(ctx, msg.Text())
	case PortYAMLToJSON:
		b.ConvertYAMLToJSON(ctx, msg.Text())
	case PortCopyToClipboard:
		b.CopyToClipboard(ctx, msg.Value)
	default:
		b.logger.WithField("port", msg.Port).Warn("Message on unknown port")
		telemetry.RecordRequestError(ctx, msg.Port, ErrorTypeUnknownPort)
		b.emit(ctx, PortOnError, unknownPortMessage(msg.Port))
	}
}

// Dispatch handles msg in its own goroutine. Use Wait to wait for all
// dispatched messages.
func (b *Bridge) Dispatch(ctx context.Context, msg Message) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Handle(ctx, msg)
	}()
}

// Wait blocks until every dispatched message has been handled.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) emit(ctx context.Context, port, value string) {
	msg := Message{Port: port, Value: &value, ID: RequestID(ctx)}
	if err := b.sink.Send(ctx, msg); err != nil {
		b.logger.WithField("port", port).WithError(err).Warn("Failed to deliver message")
	}
}

// guard runs fn, turning a panic into an error.
func guard(fn func() (string, error)) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

func unknownPortMessage(port string) string {
	if suggestion := suggestPort(port); suggestion != "" {
		return fmt.Sprintf("Unknown port: %s (did you mean %s?).", port, suggestion)
	}
	return fmt.Sprintf("Unknown port: %s.", port)
}

// suggestPort returns the inbound port closest to name, or "".
func suggestPort(name string) string {
	if name == "" {
		return ""
	}
	targets := make([]string, len(InboundPorts))
	for i, p := range InboundPorts {
		targets[i] = strings.ToLower(p)
	}
	matches := fuzzy.Find(strings.ToLower(name), targets)
	if len(matches) == 0 {
		return ""
	}
	return InboundPorts[matches[0].Index]
}
