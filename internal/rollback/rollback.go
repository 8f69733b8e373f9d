// Package rollback backs up a config section's prior state before an
// apply and hands it back for restoring if the apply fails. It also
// records the last successfully applied version per section; the
// dispatcher does not compare incoming versions against it.
package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// DefaultDir is where backups and the version map are stored on a
// stock install.
const DefaultDir = "/jffs/ngfw/rollback"

const versionsFile = "versions.json"

// versionMap tracks the last known applied version per section, keyed
// by the section's lowercase wire name.
type versionMap struct {
	Versions map[string]uint64 `json:"versions"`
}

// Store owns one rollback directory. A single Store instance should be
// shared across every adapter invocation so version-map updates don't
// race each other.
type Store struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir. The directory is created
// lazily on first write, not here.
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) backupPath(section protocol.ConfigSection) string {
	return filepath.Join(s.dir, string(section)+".json")
}

func (s *Store) versionsPath() string {
	return filepath.Join(s.dir, versionsFile)
}

// ensureDir creates the rollback directory if it does not already
// exist, logging rather than failing the caller on error, matching the
// fire-and-forget behavior the backup/restore flow expects.
func (s *Store) ensureDir() {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		s.log.Error("failed to create rollback directory", zap.String("dir", s.dir), zap.Error(err))
	}
}

// writeAtomic writes data to path via a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// half-written backup behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("rollback: create temp file: %w", err)
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
		return fmt.Errorf("rollback: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rollback: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rollback: rename file: %w", err)
	}
	ok = true
	return nil
}

// Backup saves config as the sole backup for section, overwriting
// whatever was previously stored — only a single generation is kept.
func (s *Store) Backup(section protocol.ConfigSection, config json.RawMessage) error {
	s.ensureDir()

	pretty, err := prettify(config)
	if err != nil {
		return fmt.Errorf("rollback: marshal backup for %s: %w", section, err)
	}

	if err := writeAtomic(s.backupPath(section), pretty); err != nil {
		return err
	}
	s.log.Info("backed up config", zap.String("section", string(section)))
	return nil
}

// Restore returns the previously backed-up config for section. It
// returns an error (rather than a zero value) if no backup exists,
// e.g. on a section's very first apply.
func (s *Store) Restore(section protocol.ConfigSection) (json.RawMessage, error) {
	data, err := os.ReadFile(s.backupPath(section))
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("no rollback backup found", zap.String("section", string(section)))
		}
		return nil, fmt.Errorf("rollback: restore %s: %w", section, err)
	}
	s.log.Info("restored config from backup", zap.String("section", string(section)))
	return json.RawMessage(data), nil
}

// UpdateVersion records version as the last successfully applied
// version number for section.
func (s *Store) UpdateVersion(section protocol.ConfigSection, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureDir()
	vm := s.loadVersionMap()
	if vm.Versions == nil {
		vm.Versions = map[string]uint64{}
	}
	vm.Versions[string(section)] = version

	data, err := json.MarshalIndent(vm, "", "  ")
	if err != nil {
		return fmt.Errorf("rollback: marshal version map: %w", err)
	}
	if err := writeAtomic(s.versionsPath(), data); err != nil {
		return err
	}
	s.log.Info("updated section version", zap.String("section", string(section)), zap.Uint64("version", version))
	return nil
}

// GetVersion returns the last known applied version for section and
// whether one has ever been recorded.
func (s *Store) GetVersion(section protocol.ConfigSection) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vm := s.loadVersionMap()
	v, ok := vm.Versions[string(section)]
	return v, ok
}

// loadVersionMap reads the version map from disk, returning an empty
// map on any read or parse failure rather than propagating the error —
// a missing or corrupt version map degrades to "nothing tracked yet",
// not a fatal condition.
func (s *Store) loadVersionMap() versionMap {
	data, err := os.ReadFile(s.versionsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read version map", zap.Error(err))
		}
		return versionMap{Versions: map[string]uint64{}}
	}

	var vm versionMap
	if err := json.Unmarshal(data, &vm); err != nil {
		s.log.Warn("corrupt versions.json, resetting", zap.Error(err))
		return versionMap{Versions: map[string]uint64{}}
	}
	if vm.Versions == nil {
		vm.Versions = map[string]uint64{}
	}
	return vm
}

func prettify(raw json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.MarshalIndent(v, "", "  ")
}
