package config

import (
	"fmt"
	"os"
	"strconv"
)

// KeyInfo describes a config key for display purposes. Source is "env",
// "file" or "default".
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Source string
}

// ShowAll returns every non-secret key of cfg with its value and where the
// value came from.
func ShowAll(cfg Config) []KeyInfo {
	def := defaults()
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		val := fmt.Sprintf("%v", s.extract(cfg))
		source := "default"
		switch {
		case os.Getenv(s.env) != "":
			source = "env"
		case val != fmt.Sprintf("%v", s.extract(def)):
			source = "file"
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: val, Source: source})
	}
	return result
}

// SetKey validates value and writes key to the config file at FilePath.
// Secrets are rejected; they are read from the environment only.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(FilePath()), key, value)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	if _, err := s.parse(value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		n, _ := strconv.Atoi(value)
		return b.SetInt(key, n)
	}
	return b.SetString(key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	if _, ok := lookup(key); !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	return newFileBackend(FilePath()).Delete(key)
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// ValidKeys returns the non-secret key names in display order.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
