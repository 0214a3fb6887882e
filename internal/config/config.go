// Package config loads the typed configuration for an atomicfs store,
// layering defaults, a config file, and environment variables the way the
// teacher's CLI layers viper configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

// Config is the resolved, typed configuration for one store.
type Config struct {
	// StorePath is the data file path; the journal file path is derived
	// from it (see jbs.JournalFilePath).
	StorePath string `mapstructure:"store_path"`

	// BlockSize is used only when creating a new store.
	BlockSize uint32 `mapstructure:"block_size"`

	// Consistency selects the JBS durability level: one of
	// "noflush", "flush", "journal", "verifyjournal".
	Consistency string `mapstructure:"consistency"`

	// CacheTargetSize bounds the JBS block cache's entry count.
	CacheTargetSize int `mapstructure:"cache_target_size"`

	// CacheMaxAgeSeconds bounds how long a cached block may go unused
	// before eviction.
	CacheMaxAgeSeconds int `mapstructure:"cache_max_age_seconds"`

	// MaxSizeBytes bounds total store size; 0 means unlimited.
	MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`

	// NameComparer selects the directory name ordering: "sensitive",
	// "insensitive", or "collate".
	NameComparer string `mapstructure:"name_comparer"`
}

// Defaults used when a field is absent from every configuration source.
func Defaults() Config {
	return Config{
		BlockSize:          8192,
		Consistency:        "journal",
		CacheTargetSize:    256,
		CacheMaxAgeSeconds: 60,
		MaxSizeBytes:       0,
		NameComparer:       "sensitive",
	}
}

// Load reads configuration from configPath (if non-empty), environment
// variables prefixed ATOMICFS_, and falls back to Defaults.
func Load(configPath string) (Config, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault("store_path", d.StorePath)
	v.SetDefault("block_size", d.BlockSize)
	v.SetDefault("consistency", d.Consistency)
	v.SetDefault("cache_target_size", d.CacheTargetSize)
	v.SetDefault("cache_max_age_seconds", d.CacheMaxAgeSeconds)
	v.SetDefault("max_size_bytes", d.MaxSizeBytes)
	v.SetDefault("name_comparer", d.NameComparer)

	v.SetEnvPrefix("ATOMICFS")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("config: store_path is required")
	}
	if _, err := c.ConsistencyLevel(); err != nil {
		return err
	}
	switch c.NameComparer {
	case "sensitive", "insensitive", "collate":
	default:
		return fmt.Errorf("config: unknown name_comparer %q", c.NameComparer)
	}
	return nil
}

// ConsistencyLevel parses Consistency into a jbs.Consistency value.
func (c Config) ConsistencyLevel() (jbs.Consistency, error) {
	switch strings.ToLower(c.Consistency) {
	case "noflush":
		return jbs.NoFlush, nil
	case "flush":
		return jbs.Flush, nil
	case "journal":
		return jbs.Journal, nil
	case "verifyjournal":
		return jbs.VerifyJournal, nil
	default:
		return 0, fmt.Errorf("config: unknown consistency level %q", c.Consistency)
	}
}
