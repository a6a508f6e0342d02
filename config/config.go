// Package config loads the YAML configuration of the logoann server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/hupe1980/logoann/distance"
)

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir holds local state: the embedding store and the artifact
	// cache. Created on startup if missing.
	DataDir string `yaml:"data_dir"`

	// StorePath overrides the embedding store location. Defaults to
	// "{data_dir}/embeddings.bin".
	StorePath string `yaml:"store_path"`

	// DefaultIndex names the index used when a request names none.
	// Defaults to the first configured index.
	DefaultIndex string `yaml:"default_index"`

	Indexes []IndexConfig `yaml:"indexes"`

	Neighbors NeighborsConfig `yaml:"neighbors"`

	Embedder EmbedderConfig `yaml:"embedder"`

	Source SourceConfig `yaml:"source"`
}

// IndexConfig describes one frozen index to load at startup.
type IndexConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`

	// Metric is "l2", "squared_l2" or "dot". Empty trusts the artifact
	// header.
	Metric string `yaml:"metric"`
}

// NeighborsConfig bounds the per-request result count.
type NeighborsConfig struct {
	// DefaultCount is used when a request does not specify one.
	DefaultCount int `yaml:"default_count"`

	// MaxCount caps the requested count.
	MaxCount int `yaml:"max_count"`
}

// EmbedderConfig points at the HTTP inference endpoint.
type EmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`

	// InputSize is the model's square input side in pixels.
	InputSize int `yaml:"input_size"`
}

// SourceConfig selects where frozen index artifacts are fetched from.
type SourceConfig struct {
	// Kind is "local", "s3" or "minio".
	Kind string `yaml:"kind"`

	// Dir is the artifact directory for kind "local".
	Dir string `yaml:"dir"`

	// Bucket and Prefix locate artifacts for kinds "s3" and "minio".
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// Endpoint, AccessKey, SecretKey and UseSSL configure kind "minio".
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Cache enables a compressed local artifact cache under
	// "{data_dir}/cache" for remote kinds.
	Cache bool `yaml:"cache"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Listen:  ":5501",
		DataDir: "data",
		Neighbors: NeighborsConfig{
			DefaultCount: 100,
			MaxCount:     500,
		},
		Embedder: EmbedderConfig{
			InputSize: 224,
		},
		Source: SourceConfig{
			Kind: "local",
			Dir:  "data/indexes",
		},
	}
}

// Load reads the configuration at path, applies defaults for unset
// fields and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if len(c.Indexes) == 0 {
		return fmt.Errorf("at least one index must be configured")
	}

	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("indexes[%d]: name must not be empty", i)
		}
		if seen[idx.Name] {
			return fmt.Errorf("indexes[%d]: duplicate name %q", i, idx.Name)
		}
		seen[idx.Name] = true

		if idx.Dimension < 0 {
			return fmt.Errorf("indexes[%d]: dimension must not be negative", i)
		}
		if _, err := distance.ParseMetric(idx.Metric); err != nil {
			return fmt.Errorf("indexes[%d]: %w", i, err)
		}
	}

	if c.DefaultIndex != "" && !seen[c.DefaultIndex] {
		return fmt.Errorf("default_index %q is not a configured index", c.DefaultIndex)
	}

	if c.Neighbors.DefaultCount <= 0 {
		return fmt.Errorf("neighbors.default_count must be positive")
	}
	if c.Neighbors.MaxCount < c.Neighbors.DefaultCount {
		return fmt.Errorf("neighbors.max_count must not be below default_count")
	}

	switch c.Source.Kind {
	case "local":
		if c.Source.Dir == "" {
			return fmt.Errorf("source.dir must be set for kind local")
		}
	case "s3", "minio":
		if c.Source.Bucket == "" {
			return fmt.Errorf("source.bucket must be set for kind %s", c.Source.Kind)
		}
		if c.Source.Kind == "minio" && c.Source.Endpoint == "" {
			return fmt.Errorf("source.endpoint must be set for kind minio")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	return nil
}

// StoreFile returns the effective embedding store path.
func (c *Config) StoreFile() string {
	if c.StorePath != "" {
		return c.StorePath
	}

	return filepath.Join(c.DataDir, "embeddings.bin")
}

// CacheDir returns the local artifact cache directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}
