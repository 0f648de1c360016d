// Package config loads the memnotes configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/memnotes/internal/logging"
	"github.com/conorfennell/memnotes/internal/validation"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto configuration keys.
const EnvPrefix = "MEMNOTES_"

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Accounts AccountsConfig `koanf:"accounts"`
	Bank     BankConfig     `koanf:"bank"`
	Log      logging.Config `koanf:"log"`
}

// ServerConfig configures the HTTP server and its sessions.
type ServerConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	CookieSecure   bool          `koanf:"cookie_secure"`
	SessionSecret  string        `koanf:"session_secret" validate:"omitempty,min=16"`
	SessionTTL     time.Duration `koanf:"session_ttl" validate:"gt=0"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	// MetricsAddr is the separate listener serving /metrics.
	MetricsAddr string `koanf:"metrics_addr" validate:"required"`
	// PublicMetrics also serves /metrics on Addr next to the user pages.
	PublicMetrics   bool          `koanf:"public_metrics"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// StorageConfig locates the per-account note stores.
type StorageConfig struct {
	DataDir string `koanf:"data_dir" validate:"required"`
}

// AccountsConfig selects the shared account database.
type AccountsConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

// BankConfig locates the reference question bank.
type BankConfig struct {
	Path     string `koanf:"path" validate:"required"`
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Options tells Load where to look.
type Options struct {
	// ConfigFile is an optional YAML file. A missing file is an error only
	// when the path was set explicitly.
	ConfigFile string
	// EnvFile is loaded into the environment first when it exists.
	EnvFile string
	// Flags are applied last. Only flags listed in FlagKeys are read.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
	// Serve additionally requires the settings only the web server needs.
	Serve bool
}

// Load reads configuration with increasing precedence from defaults, the
// YAML file, MEMNOTES_* environment variables and command-line flags.
//
// Environment variables map onto keys by stripping the prefix, lowercasing
// and splitting on the first underscore:
//
//	MEMNOTES_SERVER_SESSION_SECRET -> server.session_secret
//	MEMNOTES_STORAGE_DATA_DIR      -> storage.data_dir
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	k := koanf.New(".")

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", opts.ConfigFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if opts.Flags != nil && len(opts.FlagKeys) > 0 {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validation.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if opts.Serve && cfg.Server.SessionSecret == "" {
		return nil, errors.New("config validation failed: server.session_secret is required")
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = "127.0.0.1:9464"
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "users/data"
	}
	if cfg.Accounts.Driver == "" {
		cfg.Accounts.Driver = "sqlite"
	}
	if cfg.Accounts.DSN == "" && cfg.Accounts.Driver == "sqlite" {
		cfg.Accounts.DSN = "users/users.db"
	}
	if cfg.Bank.Path == "" {
		cfg.Bank.Path = "mem_notes.db"
	}
	if cfg.Bank.ReposDir == "" {
		cfg.Bank.ReposDir = "repos"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
