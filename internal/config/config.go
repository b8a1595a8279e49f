package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Favorites bulk-load policies
const (
	PolicyAllOrNothing = "all_or_nothing"
	PolicyPartial      = "partial"
)

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Gutendex catalog client
	Catalog struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		RateLimit     time.Duration `yaml:"rate_limit"`
		Burst         int           `yaml:"burst"`
		MaxConcurrent int           `yaml:"max_concurrent"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
		UserAgent     string        `yaml:"user_agent"`
	} `yaml:"catalog"`

	// Local key-value storage
	Storage struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Favorites struct {
		LoadPolicy string `yaml:"load_policy"`
	} `yaml:"favorites"`

	Search struct {
		HistoryLimit int    `yaml:"history_limit"`
		DefaultSort  string `yaml:"default_sort"`
	} `yaml:"search"`

	Security struct {
		// EncryptionKey is a base64 encoded 32 byte key for secrets at rest
		EncryptionKey string `yaml:"encryption_key"`
		KeyFile       string `yaml:"key_file"`
	} `yaml:"security"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns a configuration populated with default values
func Default() *Config {
	cfg := &Config{}
	dataDir := getEnv("DATA_DIR", "./data")

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Catalog.BaseURL = "https://gutendex.com"
	cfg.Catalog.Timeout = 30 * time.Second
	cfg.Catalog.RateLimit = 100 * time.Millisecond
	cfg.Catalog.Burst = 10
	cfg.Catalog.MaxConcurrent = 4
	cfg.Catalog.CacheTTL = 10 * time.Minute
	cfg.Storage.Type = StorageSQLite
	cfg.Storage.Path = filepath.Join(dataDir, "nexus.db")
	cfg.Favorites.LoadPolicy = PolicyAllOrNothing
	cfg.Search.HistoryLimit = 50
	cfg.Search.DefaultSort = "download_count"
	cfg.Security.KeyFile = filepath.Join(dataDir, "encryption.key")
	return cfg
}

// Load loads configuration from a file (if specified) and environment variables.
// Priority: 1) environment variables, 2) config file, 3) defaults.
// Command line flags are applied by the caller on the returned value.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		fileCfg, err := LoadFromFile(configFile)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		} else {
			mergeConfigs(cfg, fileCfg)
		}
	}

	loadFromEnv(cfg)

	cfg.Catalog.BaseURL = strings.TrimSuffix(cfg.Catalog.BaseURL, "/")
	cfg.Storage.Type = strings.ToLower(cfg.Storage.Type)
	cfg.Favorites.LoadPolicy = strings.ToLower(cfg.Favorites.LoadPolicy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var problems []string

	if c.Catalog.BaseURL == "" {
		problems = append(problems, "catalog.base_url")
	} else if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		problems = append(problems, "catalog.base_url (must be http or https)")
	}
	if c.Catalog.Timeout < 0 {
		problems = append(problems, "catalog.timeout")
	}
	if c.Catalog.MaxConcurrent < 0 {
		problems = append(problems, "catalog.max_concurrent")
	}
	switch c.Storage.Type {
	case StorageSQLite, StorageFile:
		if c.Storage.Path == "" {
			problems = append(problems, "storage.path")
		}
	case StorageMemory:
	default:
		problems = append(problems, "storage.type (sqlite, file or memory)")
	}
	switch c.Favorites.LoadPolicy {
	case PolicyAllOrNothing, PolicyPartial:
	default:
		problems = append(problems, "favorites.load_policy (all_or_nothing or partial)")
	}
	if c.Search.HistoryLimit < 0 {
		problems = append(problems, "search.history_limit")
	}
	if c.Security.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Security.EncryptionKey)
		if err != nil || len(key) != 32 {
			problems = append(problems, "security.encryption_key (base64 of 32 bytes)")
		}
	}

	if len(problems) > 0 {
		return &ConfigError{
			Field: strings.Join(problems, ", "),
			Msg:   "invalid or missing configuration values",
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		i, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse int from env var %s: %v\n", key, err)
			return fallback
		}
		return i
	}
	return fallback
}

func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse duration from env var %s: %v\n", key, err)
			return fallback
		}
		return d
	}
	return fallback
}

// loadFromEnv overrides cfg with environment variables
func loadFromEnv(cfg *Config) {
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Catalog.BaseURL = getEnv("GUTENDEX_BASE_URL", cfg.Catalog.BaseURL)
	cfg.Catalog.Timeout = getDurationFromEnv("CATALOG_TIMEOUT", cfg.Catalog.Timeout)
	cfg.Catalog.RateLimit = getDurationFromEnv("CATALOG_RATE_LIMIT", cfg.Catalog.RateLimit)
	cfg.Catalog.MaxConcurrent = getIntFromEnv("CATALOG_MAX_CONCURRENT", cfg.Catalog.MaxConcurrent)
	cfg.Catalog.CacheTTL = getDurationFromEnv("CATALOG_CACHE_TTL", cfg.Catalog.CacheTTL)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)

	cfg.Favorites.LoadPolicy = getEnv("FAVORITES_LOAD_POLICY", cfg.Favorites.LoadPolicy)
	cfg.Search.HistoryLimit = getIntFromEnv("SEARCH_HISTORY_LIMIT", cfg.Search.HistoryLimit)

	cfg.Security.EncryptionKey = getEnv("ENCRYPTION_KEY", cfg.Security.EncryptionKey)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)
}

// mergeConfigs copies every non-zero field of src into dst
func mergeConfigs(dst, src *Config) {
	mergeValue(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem())
}

func mergeValue(dst, src reflect.Value) {
	for i := 0; i < dst.NumField(); i++ {
		dstField := dst.Field(i)
		srcField := src.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Struct:
			mergeValue(dstField, srcField)
		case reflect.String:
			if srcField.String() != "" {
				dstField.SetString(srcField.String())
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			// time.Duration is an int64 kind
			if srcField.Int() != 0 {
				dstField.SetInt(srcField.Int())
			}
		case reflect.Float32, reflect.Float64:
			if srcField.Float() != 0 {
				dstField.SetFloat(srcField.Float())
			}
		case reflect.Bool:
			if srcField.Bool() {
				dstField.SetBool(true)
			}
		}
	}
}

// Marshal renders the configuration as YAML with secrets redacted
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Security.EncryptionKey != "" {
		redacted.Security.EncryptionKey = "<redacted>"
	}
	return yaml.Marshal(&redacted)
}
