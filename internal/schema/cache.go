package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrNotLoaded is returned by Cache.Snapshot before the first successful load.
var ErrNotLoaded = errors.New("schema: cache not loaded")

// Load reads a schema file. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var s Schema
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	if len(s.Tables) == 0 {
		return nil, fmt.Errorf("schema file %s declares no tables", path)
	}
	return &s, nil
}

// Save writes s to path as indented JSON, or YAML for .yaml/.yml paths.
func Save(path string, s *Schema) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(s)
	default:
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating schema dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Cache serves an immutable Schema snapshot. Reload swaps in a freshly parsed
// snapshot; readers holding the previous one are unaffected.
type Cache struct {
	path string
	snap atomic.Pointer[Schema]
}

// NewCache creates a Cache backed by the schema file at path. Call Reload to
// populate it.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Reload re-reads the schema file. On error the current snapshot is kept.
func (c *Cache) Reload() error {
	s, err := Load(c.path)
	if err != nil {
		return err
	}
	c.snap.Store(s)
	return nil
}

// Set replaces the snapshot directly.
func (c *Cache) Set(s *Schema) {
	c.snap.Store(s)
}

// Snapshot returns the current schema. Callers must not modify it.
func (c *Cache) Snapshot() (*Schema, error) {
	s := c.snap.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s, nil
}

// Path returns the backing file path.
func (c *Cache) Path() string { return c.path }
