package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// VersionKey is the fixed key of the schema version marker.
const VersionKey = "NostrCacheStoreVersion"

// DefaultMarkerFile is the file name used for the marker next to the database.
const DefaultMarkerFile = "nostrcache-defaults.yaml"

// VersionMarker is the small key/value slot, outside the database file, that
// records which schema version the database was created with.
type VersionMarker interface {
	// Load returns the stored version, or 0 if none was ever written.
	Load() (int, error)
	Save(version int) error
}

// FileMarker stores the marker in a YAML map file. Other keys in the file
// are preserved.
type FileMarker struct {
	mu   sync.Mutex
	path string
}

// NewFileMarker returns a marker backed by the YAML file at path.
func NewFileMarker(path string) *FileMarker {
	return &FileMarker{path: path}
}

// Path returns the marker file location.
func (m *FileMarker) Path() string { return m.path }

func (m *FileMarker) read() (map[string]int, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	values := map[string]int{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse marker %s: %w", m.path, err)
	}
	return values, nil
}

// Load implements VersionMarker.
func (m *FileMarker) Load() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.read()
	if err != nil {
		return 0, err
	}
	return values[VersionKey], nil
}

// Save implements VersionMarker. The file is replaced atomically.
func (m *FileMarker) Save(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.read()
	if err != nil {
		return err
	}
	values[VersionKey] = version

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".marker-*")
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// MemoryMarker keeps the marker in memory. Used for ephemeral stores and tests.
type MemoryMarker struct {
	mu      sync.Mutex
	version int
	saves   int
}

// NewMemoryMarker returns a marker holding version.
func NewMemoryMarker(version int) *MemoryMarker {
	return &MemoryMarker{version: version}
}

// Load implements VersionMarker.
func (m *MemoryMarker) Load() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

// Save implements VersionMarker.
func (m *MemoryMarker) Save(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryMarker) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
