// Package mode persists the agent's graduated-authority configuration
// to disk so it survives restarts, and broadcasts changes to the rest
// of the agent through a watch.Value.
package mode

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/watch"
)

// DefaultModeFile is where the persisted ModeConfig lives on a stock
// install. Overridable for tests and alternate deployments.
const DefaultModeFile = "/jffs/ngfw/mode.json"

// Store owns the on-disk mode file and the in-memory watch.Value that
// the dispatcher reads the current mode from.
type Store struct {
	path    string
	current *watch.Value[protocol.ModeConfig]
	log     *zap.Logger
}

// NewStore loads path (or falls back to Observe if it is missing or
// corrupt) and returns a Store wrapping the result.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	mc := Load(path, log)
	return &Store{path: path, current: watch.NewValue(mc), log: log}
}

// Load reads the persisted ModeConfig from path, defaulting to Observe
// with no overrides if the file is absent or fails to parse.
func Load(path string, log *zap.Logger) protocol.ModeConfig {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("no persisted mode found, defaulting to observe", zap.String("path", path))
		} else {
			log.Warn("failed to read mode file, defaulting to observe", zap.String("path", path), zap.Error(err))
		}
		return protocol.DefaultModeConfig()
	}

	var mc protocol.ModeConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		log.Warn("failed to parse mode file, defaulting to observe", zap.String("path", path), zap.Error(err))
		return protocol.DefaultModeConfig()
	}
	log.Info("loaded persisted mode config", zap.String("path", path), zap.String("mode", string(mc.Mode)))
	return mc
}

// Persist writes mc to path atomically via a temp file plus rename,
// creating the parent directory first if necessary.
func Persist(path string, mc protocol.ModeConfig) error {
	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return fmt.Errorf("mode: marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mode: create mode dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "mode.*.tmp")
	if err != nil {
		return fmt.Errorf("mode: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("mode: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mode: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("mode: rename mode file: %w", err)
	}
	ok = true
	return nil
}

// Current returns the mode config in effect right now.
func (s *Store) Current() protocol.ModeConfig {
	return s.current.Get()
}

// Changed returns a channel that closes the next time Set is called,
// matching watch.Value's last-value-wins broadcast semantics.
func (s *Store) Changed() <-chan struct{} {
	return s.current.Changed()
}

// Set persists mc to disk and, only on success, updates the in-memory
// value and wakes every watcher.
func (s *Store) Set(mc protocol.ModeConfig) error {
	if err := Persist(s.path, mc); err != nil {
		return err
	}
	s.current.Set(mc)
	s.log.Info("mode updated", zap.String("mode", string(mc.Mode)), zap.Int("overrides", len(mc.SectionOverrides)))
	return nil
}
