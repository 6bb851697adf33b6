// Package config loads ditaadoc's TOML configuration file.
//
// A configuration file looks like this; every key is optional:
//
//	[ditaa]
//	path = "ditaa"
//	args = ["--encoding", "utf-8"]
//	timeout = "30s"
//	prefix = "ditaa"
//
//	[build]
//	source = "docs"
//	output = "_build"
//	workers = 4
//
//	[cache]
//	backend = "redis"
//	url = "redis://localhost:6379/0"
//	namespace = "ditaadoc:"
//
//	[server]
//	addr = "127.0.0.1:8000"
//
// Relative build and cache directories are resolved against the directory of
// the configuration file.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// DefaultFile is the configuration file looked for in the working directory.
const DefaultFile = "ditaadoc.toml"

// Cache backends.
const (
	BackendNone  = ""
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

var backends = []string{BackendNone, BackendFile, BackendRedis, BackendMongo}

// Config is the complete configuration.
type Config struct {
	Ditaa  Ditaa  `toml:"ditaa"`
	Build  Build  `toml:"build"`
	Cache  Cache  `toml:"cache"`
	Server Server `toml:"server"`

	// File is the path the configuration was loaded from, if any.
	File string `toml:"-"`
}

// Ditaa configures the external tool.
type Ditaa struct {
	Path    string   `toml:"path"`
	Args    []string `toml:"args"`
	Timeout string   `toml:"timeout"`
	Prefix  string   `toml:"prefix"`
}

// Build configures the documentation build.
type Build struct {
	Source  string `toml:"source"`
	Output  string `toml:"output"`
	Workers int    `toml:"workers"`
}

// Cache configures the remote image mirror.
type Cache struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	URL        string `toml:"url"`
	Namespace  string `toml:"namespace"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Server configures the preview server.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ditaa: Ditaa{
			Path:   "ditaa",
			Args:   []string{},
			Prefix: "ditaa",
		},
		Build: Build{
			Source:  "docs",
			Output:  "_build",
			Workers: 4,
		},
		Cache: Cache{
			Namespace: "ditaadoc:",
		},
		Server: Server{
			Addr: "127.0.0.1:8000",
		},
	}
}

// Load reads the configuration at path over the defaults.
//
// An empty path means DefaultFile in the working directory, which may be
// absent. A path given explicitly must exist. Unknown keys are rejected so
// typos do not go unnoticed.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.File = path
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Build.Source = abs(c.Build.Source)
	c.Build.Output = abs(c.Build.Output)
	c.Cache.Dir = abs(c.Cache.Dir)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ditaa.Path) == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "ditaa.path cannot be empty")
	}
	if c.Ditaa.Prefix == "" || strings.ContainsAny(c.Ditaa.Prefix, `/\`) {
		return errors.New(errors.ErrCodeInvalidConfig, "ditaa.prefix must be a non-empty file name prefix, got %q", c.Ditaa.Prefix)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Build.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "build.workers cannot be negative, got %d", c.Build.Workers)
	}
	if !slices.Contains(backends, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache.backend %q (want file, redis or mongo)", c.Cache.Backend)
	}
	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.dir is required for the file backend")
		}
	case BackendRedis, BackendMongo:
		if c.Cache.URL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.url is required for the %s backend", c.Cache.Backend)
		}
	}
	return nil
}

// Timeout parses ditaa.timeout. An empty value means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.Ditaa.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Ditaa.Timeout)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid ditaa.timeout %q", c.Ditaa.Timeout)
	}
	if d < 0 {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "ditaa.timeout cannot be negative")
	}
	return d, nil
}
