package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// watchAddTimeout bounds how long adding a path to the watcher may block
const watchAddTimeout = 5 * time.Second

// Store holds the current Config and replaces it when the file changes
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	path      string
	logger    *logrus.Logger
	listeners []func(*Config)
}

// NewStore loads path and returns a Store holding the result
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, path: path, logger: logger}, nil
}

// Current returns the active config. Callers must not modify it.
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path returns the file the store was loaded from
func (s *Store) Path() string {
	return s.path
}

// OnChange registers fn to run after every successful reload
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Reload re-reads the file. The previous config stays active when the new one is invalid.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads the config whenever its file is written, until ctx is done.
// The parent directory is watched so that editors replacing the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Add(dir)
	}()

	select {
	case err := <-done:
		if err != nil {
			if closeErr := watcher.Close(); closeErr != nil {
				s.logger.WithError(closeErr).Warn("Failed to close watcher after add error")
			}
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
	case <-time.After(watchAddTimeout):
		if closeErr := watcher.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Warn("Failed to close watcher after timeout")
		}
		return fmt.Errorf("timeout adding config directory to watcher")
	}

	target := filepath.Clean(s.path)
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.logger.WithField("path", s.path).Debug("Config file changed, reloading")
				if err := s.Reload(); err != nil {
					s.logger.WithError(err).Error("Failed to reload config, keeping previous settings")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Error("Config file watcher error")
			}
		}
	}()

	return nil
}
