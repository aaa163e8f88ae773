package bridge

import (
	"context"
	"errors"
	"sync"
)

// Inbound ports, sent by the GUI application.
const (
	PortJSONToYAML      = "jsonToYaml"
	PortYAMLToJSON      = "yamlToJson"
	PortCopyToClipboard = "copyToClipboard"
)

// Outbound ports, sent to the GUI application.
const (
	PortOnJSONToYAML = "onJsonToYaml"
	PortOnYAMLToJSON = "onYamlToJson"
	PortOnError      = "onError"
)

// InboundPorts lists the ports the bridge subscribes to.
var InboundPorts = []string{PortJSONToYAML, PortYAMLToJSON, PortCopyToClipboard}

// Message is a single value travelling on a port. A nil Value is an absent
// payload. ID is an optional correlation id that is copied onto the reply.
type Message struct {
	Port  string  `json:"port"`
	Value *string `json:"value"`
	ID    string  `json:"id,omitempty"`
}

// Text builds a message carrying value.
func Text(port, value string) Message {
	return Message{Port: port, Value: &value}
}

// Text returns the payload, or "" when absent.
func (m Message) Text() string {
	if m.Value == nil {
		return ""
	}
	return *m.Value
}

// IsError reports whether the message was sent on the error port.
func (m Message) IsError() bool {
	return m.Port == PortOnError
}

// Sink receives outbound messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChanSink delivers messages to a channel, giving up when ctx is done.
type ChanSink chan<- Message

func (c ChanSink) Send(ctx context.Context, msg Message) error {
	select {
	case c <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrSinkClosed is returned by a Recorder after Close.
var ErrSinkClosed = errors.New("sink closed")

// Recorder keeps every message it is sent. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSinkClosed
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Close makes further sends fail.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages in arrival order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id that replies will carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
