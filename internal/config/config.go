// Package config loads the CLI configuration from file, environment, and
// defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"inferno/internal/engine"
)

// Config is the complete tool configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Write    WriteConfig    `mapstructure:"write"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Download DownloadConfig `mapstructure:"download"`
}

// WriteConfig tunes the write engine.
type WriteConfig struct {
	// ChunkSizeBytes is the write granularity. Must be a positive
	// multiple of 512.
	ChunkSizeBytes int64 `mapstructure:"chunk_size_bytes" validate:"gt=0"`

	// Verify controls the post-write verification pass.
	Verify bool `mapstructure:"verify"`
}

// FetchConfig names the GitHub project release images are fetched from.
type FetchConfig struct {
	Owner string `mapstructure:"owner" validate:"required"`
	Repo  string `mapstructure:"repo" validate:"required"`
}

// DownloadConfig controls where fetched images land.
type DownloadConfig struct {
	// Dir overrides the default Downloads directory. Empty means auto.
	Dir string `mapstructure:"dir"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("write.chunk_size_bytes", engine.DefaultChunkSize)
	v.SetDefault("write.verify", true)
	v.SetDefault("fetch.owner", "kairos-io")
	v.SetDefault("fetch.repo", "kairos")
	v.SetDefault("download.dir", "")
}

// Load reads the configuration. path may be empty, in which case only the
// default search locations, environment, and defaults apply. Environment
// variables use the INFERNO_ prefix with underscores, e.g.
// INFERNO_WRITE_VERIFY=false.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INFERNO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("inferno")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/inferno")
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags plus the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Write.ChunkSizeBytes%512 != 0 {
		return fmt.Errorf("invalid config: write.chunk_size_bytes must be a multiple of 512, got %d", cfg.Write.ChunkSizeBytes)
	}
	return nil
}

// Options converts the configuration into engine write options. The
// overwrite gate stays false; only an explicit user confirmation sets it.
func (c *Config) Options() engine.Options {
	return engine.Options{
		VerifyAfterWrite: c.Write.Verify,
		ChunkSize:        c.Write.ChunkSizeBytes,
	}
}
