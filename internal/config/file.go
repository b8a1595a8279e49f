package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
// Only the fields present in the file are set; callers merge the result over defaults.
func LoadFromFile(path string) (*Config, error) {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	log.Debug().
		Str("config_file", path).
		Int64("file_size", fileInfo.Size()).
		Time("file_mod_time", fileInfo.ModTime()).
		Msg("Loading configuration file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	log.Debug().
		Str("config_file", path).
		Str("catalog_base_url", cfg.Catalog.BaseURL).
		Str("storage_type", cfg.Storage.Type).
		Bool("has_encryption_key", cfg.Security.EncryptionKey != "").
		Msg("Parsed configuration file")

	return &cfg, nil
}
