package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigBackend is where persisted (non-env) config keys live.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// configDir is $GHOST_CONFIG_DIR, else $XDG_CONFIG_HOME/ghost, else
// ~/.config/ghost.
func configDir() string {
	if dir := os.Getenv("GHOST_CONFIG_DIR"); dir != "" {
		return dir
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ghost")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "ghost-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "ghost")
}

// yamlBackend keeps keys in config.yaml grouped by their section, so
// "server.port" is stored as port under server.
type yamlBackend struct {
	path string
	data map[string]map[string]any
}

func newPlatformBackend() ConfigBackend {
	return newYAMLBackend(filepath.Join(configDir(), "config.yaml"))
}

func newYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, data: map[string]map[string]any{}}
	b.load()
	return b
}

func (b *yamlBackend) load() {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		return
	}
	if err := yaml.Unmarshal(raw, &b.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", b.path, err)
		b.data = map[string]map[string]any{}
	}
	if b.data == nil {
		b.data = map[string]map[string]any{}
	}
}

func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := yaml.Marshal(b.data)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, out, 0o600)
}

func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", key
	}
	return section, name
}

func (b *yamlBackend) lookup(key string) (any, bool) {
	section, name := splitKey(key)
	v, ok := b.data[section][name]
	return v, ok
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	default:
		return fmt.Sprint(v), true, nil
	}
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *yamlBackend) set(key string, v any) error {
	section, name := splitKey(key)
	if b.data[section] == nil {
		b.data[section] = map[string]any{}
	}
	b.data[section][name] = v
	return b.save()
}

func (b *yamlBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *yamlBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *yamlBackend) Delete(key string) error {
	section, name := splitKey(key)
	delete(b.data[section], name)
	if len(b.data[section]) == 0 {
		delete(b.data, section)
	}
	return b.save()
}
