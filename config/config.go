// Package config handles spymem.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a spymem.toml runtime configuration.
type Config struct {
	Heap Heap `toml:"heap"`
	Log  Log  `toml:"log"`

	// Dir is the directory containing the spymem.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap configures the heap instance created at startup. The strategy is
// fixed for the process lifetime; it is not switchable at runtime.
type Heap struct {
	Strategy   string `toml:"strategy"`
	MaxObjects int    `toml:"max-objects"`
}

// Log configures logging verbosity (0 = errors only, higher is noisier).
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no spymem.toml is found.
func Default() *Config {
	return &Config{
		Heap: Heap{
			Strategy:   "refcount",
			MaxObjects: 65536,
		},
	}
}

// Load parses a spymem.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "spymem.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if c.Heap.Strategy == "" {
		c.Heap.Strategy = "refcount"
	}
	if c.Heap.MaxObjects == 0 {
		c.Heap.MaxObjects = 65536
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a spymem.toml file, then loads
// and returns the configuration. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "spymem.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
