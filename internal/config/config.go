// Package config loads the YAML file describing a repository: where its
// schema lives, which record store backs it, and how its units of work
// cache entities and serialize commits.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Commit lock strategies.
const (
	LockIgnore    = "ignore"
	LockFailFast  = "fail_fast"
	LockSerialize = "serialize"
)

// Config is the repository configuration.
type Config struct {
	// Schema is the path of the CUE schema file.
	Schema string `yaml:"schema"`

	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	CommitLock CommitLockConfig `yaml:"commit_lock"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Ignored for memory.
	Path string `yaml:"path,omitempty"`
}

// CacheConfig bounds each unit of work's entity cache.
type CacheConfig struct {
	// MaxEntries is the LRU capacity; 0 keeps every entity.
	MaxEntries int `yaml:"max_entries"`
}

// CommitLockConfig selects the commit lock strategy.
type CommitLockConfig struct {
	Strategy string        `yaml:"strategy"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Schema: "schema.cue",
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "entigraph.db",
		},
		CommitLock: CommitLockConfig{
			Strategy: LockSerialize,
			Timeout:  5 * time.Second,
		},
	}
}

// Load reads the configuration at path over the defaults. Relative schema
// and database paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML configuration over the defaults and validates it.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Schema == "" {
		errs = append(errs, errors.New("schema is required"))
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: must be %s or %s", c.Store.Backend, BackendSQLite, BackendMemory))
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries))
	}

	switch c.CommitLock.Strategy {
	case LockIgnore, LockFailFast, LockSerialize:
	default:
		errs = append(errs, fmt.Errorf("commit_lock.strategy %q: must be one of %s, %s, %s",
			c.CommitLock.Strategy, LockIgnore, LockFailFast, LockSerialize))
	}
	if c.CommitLock.Timeout < 0 {
		errs = append(errs, fmt.Errorf("commit_lock.timeout must not be negative, got %s", c.CommitLock.Timeout))
	}
	return errors.Join(errs...)
}

func (c *Config) resolve(dir string) {
	if c.Schema != "" && !filepath.IsAbs(c.Schema) {
		c.Schema = filepath.Join(dir, c.Schema)
	}
	if c.Store.Backend == BackendSQLite && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dir, c.Store.Path)
	}
}
