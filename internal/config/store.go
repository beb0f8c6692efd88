package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider supplies the committed configuration.
type Provider interface {
	// Get returns a copy of the last committed snapshot. It never fails.
	Get() Snapshot

	// Set validates and commits s. Later Get calls observe it.
	Set(s Snapshot) error
}

// Memory is a Provider that keeps the snapshot in RAM only.
type Memory struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemory creates a Memory provider holding s.
func NewMemory(s Snapshot) *Memory {
	return &Memory{snap: s.Clone()}
}

// Get returns a copy of the current snapshot.
func (m *Memory) Get() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// Set validates and stores s.
func (m *Memory) Set(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	m.mu.Lock()
	m.snap = s.Clone()
	m.mu.Unlock()
	return nil
}

// FileStore is a Provider backed by a YAML file.
type FileStore struct {
	mu   sync.RWMutex
	path string
	snap Snapshot
}

// OpenFile loads the YAML file at path. A missing file yields the defaults;
// the file is created on the first Set.
func OpenFile(path string) (*FileStore, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, snap: snap}, nil
}

// Load reads and validates the YAML file at path. Keys absent from the file
// keep their default values.
func Load(path string) (Snapshot, error) {
	snap := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return snap, nil
}

// Path returns the file the store writes to.
func (f *FileStore) Path() string { return f.path }

// Get returns a copy of the current snapshot.
func (f *FileStore) Get() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap.Clone()
}

// Set validates s, writes it to disk and then makes it visible.
func (f *FileStore) Set(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeAtomic(f.path, data); err != nil {
		return err
	}
	f.snap = s.Clone()
	return nil
}

// writeAtomic replaces path with data so a power cut leaves either the old
// or the new file, never a truncated one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
