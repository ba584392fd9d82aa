package gpucache

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the cache options.
//
//	prune_delay: 3
//	pool:
//	  max_sets: 512
//	  extinct_warn: 4
//	  sizes:
//	    - {type: UniformBuffer, count: 512}
//	    - {type: CombinedImageSampler, count: 1024}
type Config struct {
	PruneDelay uint64     `yaml:"prune_delay"`
	Pool       PoolConfig `yaml:"pool"`
}

// PoolConfig configures the descriptor pool.
type PoolConfig struct {
	MaxSets     uint32     `yaml:"max_sets"`
	Sizes       []PoolSize `yaml:"sizes"`
	ExtinctWarn int        `yaml:"extinct_warn"`
}

// DefaultConfig returns the configuration matching the default options.
func DefaultConfig() *Config {
	return &Config{
		PruneDelay: DefaultPruneDelay,
		Pool: PoolConfig{
			MaxSets:     DefaultPoolMaxSets,
			Sizes:       DefaultPoolSizes(),
			ExtinctWarn: DefaultExtinctPoolWarn,
		},
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
// Fields absent from data keep their default values.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gpucache: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("gpucache: read config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks that the configuration can build a descriptor pool.
func (c *Config) Validate() error {
	if c.Pool.MaxSets == 0 {
		return fmt.Errorf("gpucache: config: pool.max_sets must be positive")
	}
	if len(c.Pool.Sizes) == 0 {
		return fmt.Errorf("gpucache: config: pool.sizes must not be empty")
	}
	seen := make(map[BindingType]bool, len(c.Pool.Sizes))
	for _, s := range c.Pool.Sizes {
		if s.Type == BindingNone {
			return fmt.Errorf("gpucache: config: pool size with no type")
		}
		if s.Count == 0 {
			return fmt.Errorf("gpucache: config: pool size for %s is zero", s.Type)
		}
		if seen[s.Type] {
			return fmt.Errorf("gpucache: config: duplicate pool size for %s", s.Type)
		}
		seen[s.Type] = true
	}
	if c.Pool.ExtinctWarn < 0 {
		return fmt.Errorf("gpucache: config: pool.extinct_warn must not be negative")
	}
	return nil
}

// Options converts the configuration into cache options.
func (c *Config) Options() []Option {
	return []Option{
		WithPruneDelay(c.PruneDelay),
		WithPoolCapacity(c.Pool.MaxSets),
		WithPoolSizes(c.Pool.Sizes),
		WithExtinctPoolWarning(c.Pool.ExtinctWarn),
	}
}
