package tools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLogRetentionDays is how long failed calls are kept in the error log
	DefaultLogRetentionDays = 60
	// ErrorLogEnvVar enables the error log when set to "true"
	ErrorLogEnvVar = "LOG_TOOL_ERRORS"
	// ErrorLogFileName is the file name used inside the log directory
	ErrorLogFileName = "tool-errors.log"
)

// ErrorLogEntry is one line of the tool error log
type ErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ErrorLog appends failed tool calls to a JSON-lines file. A nil or disabled
// ErrorLog ignores every call.
type ErrorLog struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger *logrus.Logger
	now    func() time.Time
	closed bool
}

// OpenErrorLog opens (or creates) the error log in dir when LOG_TOOL_ERRORS=true.
// It returns a nil *ErrorLog, which is valid and inert, when logging is off.
func OpenErrorLog(dir string, logger *logrus.Logger) (*ErrorLog, error) {
	if os.Getenv(ErrorLogEnvVar) != "true" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &ErrorLog{
		path:   filepath.Join(dir, ErrorLogFileName),
		logger: logger,
		now:    time.Now,
	}
	if err := l.reopenLocked(); err != nil {
		return nil, err
	}

	go func() {
		if err := l.Prune(DefaultLogRetentionDays); err != nil {
			logger.WithError(err).Warn("Failed to prune tool error log")
		}
	}()

	logger.WithField("path", l.path).Info("Tool error logging enabled")
	return l, nil
}

// Record appends one failed call. Marshalling and write failures are logged, not returned.
func (l *ErrorLog) Record(toolName string, args map[string]any, cause string, transport string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}

	line, err := json.Marshal(ErrorLogEntry{
		Timestamp: l.now().Format(time.RFC3339),
		ToolName:  toolName,
		Arguments: args,
		Error:     cause,
		Transport: transport,
	})
	if err != nil {
		l.logger.WithError(err).Error("Failed to marshal tool error log entry")
		return
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.logger.WithError(err).Error("Failed to write tool error log entry")
		return
	}
	if err := l.file.Sync(); err != nil {
		l.logger.WithError(err).Error("Failed to sync tool error log")
	}
}

// Prune drops entries older than days. Entries that cannot be parsed are kept.
func (l *ErrorLog) Prune(days int) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file for pruning: %w", err)
		}
		l.file = nil
	}

	kept, err := l.readRecent(l.now().AddDate(0, 0, -days))
	if err != nil {
		_ = l.reopenLocked()
		return err
	}

	tmp := l.path + ".tmp"
	content := ""
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		_ = l.reopenLocked()
		return fmt.Errorf("failed to write pruned log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		_ = l.reopenLocked()
		return fmt.Errorf("failed to replace log file: %w", err)
	}
	return l.reopenLocked()
}

func (l *ErrorLog) readRecent(cutoff time.Time) ([]string, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var kept []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry ErrorLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			kept = append(kept, line)
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || ts.After(cutoff) {
			kept = append(kept, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return kept, nil
}

// reopenLocked opens the log file for appending. Caller must hold l.mu.
func (l *ErrorLog) reopenLocked() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open tool error log: %w", err)
	}
	l.file = f
	return nil
}

// Close closes the log file. A closed log ignores later Record and Prune calls.
func (l *ErrorLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
