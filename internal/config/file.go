package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// xdgDir returns $env/vendorintel, falling back to ~/<rel>/vendorintel, or
// fallback when there is no home directory.
func xdgDir(env, rel, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "vendorintel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, rel, "vendorintel")
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "vendorintel-data")
}

// FilePath returns the config file location: VENDORINTEL_CONFIG if set,
// otherwise config.json under the XDG config directory.
func FilePath() string {
	if p := os.Getenv("VENDORINTEL_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "vendorintel"), "config.json")
}

// fileBackend keeps the config file as raw JSON values keyed by dotted name
// and decodes each one on demand into the type the caller asks for.
type fileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("config: unreadable config file, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("config: malformed config file, using defaults", "path", path, "error", err)
			b.values = map[string]json.RawMessage{}
		}
	}
	return b
}

func (b *fileBackend) raw(key string) (json.RawMessage, bool) {
	v, ok := b.values[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// GetString returns strings as-is and any other JSON scalar in its literal
// form, so `false` and `45` read as "false" and "45".
func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true, nil
	}
	return string(bytes.TrimSpace(v)), true, nil
}

// GetInt accepts a JSON integer or a string holding one.
func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, true, fmt.Errorf("%s: want an integer, got %s", key, v)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.write()
}

func (b *fileBackend) set(key string, val any) error {
	enc, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b.values[key] = enc
	return b.write()
}

// write replaces the file by renaming a temp file from the same directory.
func (b *fileBackend) write() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp.Name(), b.path)
}
