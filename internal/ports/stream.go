package ports

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// MaxFrameBytes is the largest frame a Stream accepts
const MaxFrameBytes = 64 * 1024 * 1024

// Stream serves bridge ports over newline-delimited JSON, typically stdin
// and stdout. Replies may arrive in any order; clients correlate them by id.
type Stream struct {
	in      io.Reader
	out     io.Writer
	factory bridge.Factory
	logger  *logrus.Logger

	mu sync.Mutex
}

// NewStream creates a Stream reading requests from in and writing replies to out.
func NewStream(in io.Reader, out io.Writer, factory bridge.Factory, logger *logrus.Logger) *Stream {
	return &Stream{in: in, out: out, factory: factory, logger: logger}
}

// Send writes one reply frame. It is safe for concurrent use.
func (s *Stream) Send(ctx context.Context, msg bridge.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Serve handles frames until the input ends or ctx is done. Requests still
// running when the input ends are completed before Serve returns.
func (s *Stream) Serve(ctx context.Context) error {
	ctx = telemetry.WithTransport(ctx, telemetry.TransportPorts)
	b := s.factory(s)
	defer b.Wait()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), MaxFrameBytes)
		for scanner.Scan() {
			frame := append([]byte(nil), scanner.Bytes()...)
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read port messages: %w", err)
					}
				default:
				}
				s.logger.Debug("Port stream closed")
				return nil
			}
			s.handleFrame(ctx, b, frame)
		}
	}
}

func (s *Stream) handleFrame(ctx context.Context, b *bridge.Bridge, frame []byte) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return
	}
	msg, err := Decode(frame)
	if err != nil {
		s.logger.WithError(err).Warn("Invalid port message")
		if sendErr := s.Send(ctx, InvalidFrame(err)); sendErr != nil {
			s.logger.WithError(sendErr).Warn("Failed to reply to invalid port message")
		}
		return
	}
	b.Dispatch(ctx, withID(msg))
}

// withID assigns a random id to messages the client sent without one.
func withID(msg bridge.Message) bridge.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg
}
