// Package clipboard writes text to a clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
)

// Backend names accepted by New
const (
	BackendSystem = "system"
	BackendMemory = "memory"
	BackendNone   = "none"
)

var (
	// ErrUnsupported is returned when the platform has no clipboard utility
	ErrUnsupported = fmt.Errorf("clipboard operations not supported on %s", runtime.GOOS)
	// ErrDisabled is returned by the disabled backend
	ErrDisabled = errors.New("clipboard is disabled")
)

// Writer writes text to a clipboard.
type Writer interface {
	WriteText(ctx context.Context, text string) error
}

// New returns the writer for the named backend.
func New(backend string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSystem:
		return System{}, nil
	case BackendMemory:
		return &Memory{}, nil
	case BackendNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown clipboard backend: %s", backend)
	}
}

// System writes to the operating system clipboard.
type System struct{}

func (System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}

// Memory keeps clipboard contents in process. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	text   string
	writes int
	// Err, when set, is returned by every write and the contents are left untouched
	Err error
}

func (m *Memory) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.text = text
	m.writes++
	return nil
}

// Text returns the last text written.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Writes returns the number of successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Disabled rejects every write.
type Disabled struct{}

func (Disabled) WriteText(context.Context, string) error {
	return ErrDisabled
}
