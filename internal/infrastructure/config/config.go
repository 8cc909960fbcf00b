package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root settings structure for confman.
// All settings are loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Vault      VaultConfig      `yaml:"vault"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig contains version history store settings.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite snapshot store.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`

	// LockWait is the maximum time to wait for the commit lock (seconds)
	// before failing with a lock timeout.
	LockWait int `yaml:"lock_wait"`
}

// VaultConfig contains sensitive-field settings.
type VaultConfig struct {
	// KeyEnv names the environment variable holding the vault passphrase.
	KeyEnv string `yaml:"key_env"`

	// KeyFile is a file holding the vault passphrase, used when the
	// environment variable is unset. Trailing whitespace is trimmed.
	KeyFile string `yaml:"key_file"`

	// Markers lists dotted field paths whose values must be stored
	// encrypted, in addition to the suffix convention.
	Markers []string `yaml:"markers"`

	// Suffix is the field-name suffix that marks a field sensitive.
	// Empty disables the convention.
	Suffix string `yaml:"suffix"`
}

// ValidationConfig contains schema validation settings.
type ValidationConfig struct {
	// Strict makes fields absent from the schema validation errors
	// instead of being permitted.
	Strict bool `yaml:"strict"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads settings from a YAML file and applies environment variable
// overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CONFMAN_SECTION_KEY
// For example: CONFMAN_STORE_PATH, CONFMAN_LOG_LEVEL
//
// Parameters:
//   - path: Path to the YAML settings file
//
// Returns:
//   - *Config: Loaded and validated settings
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// FromEnvironment returns the default settings with environment variable
// overrides applied, used when no settings file is given.
func FromEnvironment() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults, used directly when no
// settings file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:        "./data/confman.db",
			WALMode:     true,
			BusyTimeout: 5,
			LockWait:    5,
		},
		Vault: VaultConfig{
			KeyEnv: "CONFMAN_KEY",
			Suffix: "_secret",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables follow the pattern: CONFMAN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Store
	if v := os.Getenv("CONFMAN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CONFMAN_STORE_LOCK_WAIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.LockWait = n
		}
	}

	// Vault
	if v := os.Getenv("CONFMAN_VAULT_KEY_ENV"); v != "" {
		cfg.Vault.KeyEnv = v
	}
	if v := os.Getenv("CONFMAN_VAULT_KEY_FILE"); v != "" {
		cfg.Vault.KeyFile = v
	}

	// Logging
	if v := os.Getenv("CONFMAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CONFMAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the settings for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.Store.LockWait < 0 {
		errs = append(errs, "store.lock_wait must not be negative")
	}
	if c.Store.BusyTimeout < 0 {
		errs = append(errs, "store.busy_timeout must not be negative")
	}
	if c.Vault.KeyEnv == "" && c.Vault.KeyFile == "" {
		errs = append(errs, "vault.key_env or vault.key_file is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LockWait returns the commit lock wait as a Duration.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Store.LockWait) * time.Second
}

// KeyMaterial returns the vault passphrase from the configured
// environment variable, falling back to the key file. A nil result with
// nil error means no key is configured and the vault is disabled.
func (c *Config) KeyMaterial() ([]byte, error) {
	if c.Vault.KeyEnv != "" {
		if v, ok := os.LookupEnv(c.Vault.KeyEnv); ok && v != "" {
			return []byte(v), nil
		}
	}
	if c.Vault.KeyFile != "" {
		data, err := os.ReadFile(c.Vault.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		key := strings.TrimRight(string(data), "\r\n")
		if key == "" {
			return nil, fmt.Errorf("key file %s is empty", c.Vault.KeyFile)
		}
		return []byte(key), nil
	}
	return nil, nil
}
