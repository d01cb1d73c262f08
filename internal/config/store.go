package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// Store holds the live settings and serves policy snapshots to the
// orchestrator. It reloads the settings file when it changes on disk; a
// reload that fails validation keeps the previous settings in effect.
type Store struct {
	mu     sync.RWMutex
	cfg    *Config
	loader *Loader
	logger zerolog.Logger
}

// NewStore loads the settings once and wraps them in a store.
func NewStore(loader *Loader, logger zerolog.Logger) (*Store, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, loader: loader, logger: logger}, nil
}

// Config returns a copy of the current settings.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// PolicySettings returns the snapshot the policy engine evaluates against.
// A shell tool that found its way into the always-allowed list is stripped
// here, so a hand-edited settings file cannot widen shell access.
func (s *Store) PolicySettings() permission.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.cfg.PolicySettings()

	filtered := settings.AlwaysAllowedTools[:0]
	for _, name := range settings.AlwaysAllowedTools {
		if tools.IsShell(name) {
			s.logger.Warn().Str("tool", name).Msg("Shell tool in always-allowed settings ignored")
			continue
		}
		filtered = append(filtered, name)
	}
	settings.AlwaysAllowedTools = filtered

	return settings
}

// AppendAlwaysAllowed adds a tool to the durable always-allowed list and
// persists the settings file. Shell tools are refused outright.
func (s *Store) AppendAlwaysAllowed(toolName string) error {
	if toolName == "" {
		return fmt.Errorf("tool name is empty")
	}
	if tools.IsShell(toolName) {
		return fmt.Errorf("tool %s cannot be always-allowed", toolName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.cfg.Permissions.AlwaysAllowedTools {
		if name == toolName {
			return nil
		}
	}

	s.cfg.Permissions.AlwaysAllowedTools = append(s.cfg.Permissions.AlwaysAllowedTools, toolName)
	if err := s.loader.Save(s.cfg); err != nil {
		return fmt.Errorf("persist always-allowed tool: %w", err)
	}

	s.logger.Info().Str("tool", toolName).Msg("Tool added to always-allowed settings")
	return nil
}

// Watch reloads the settings whenever the file changes, until the context is
// done. Editors replace files rather than writing in place, so the watch is
// on the directory and filtered by name.
func (s *Store) Watch(ctx context.Context) error {
	path := s.loader.Path()
	if path == "" {
		return fmt.Errorf("cannot resolve settings path: no home directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch settings directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				s.reload()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("Settings watcher error")
			}
		}
	}()

	return nil
}

func (s *Store) reload() {
	cfg, err := s.loader.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Settings reload failed, keeping previous settings")
		return
	}
	if err := cfg.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("Reloaded settings invalid, keeping previous settings")
		return
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info().Msg("Settings reloaded")
}
