package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables the config loader reads.
// A double underscore separates hierarchy levels: NIGHTVAULT_AUTH__CLIENT_ID
// maps to auth.client_id.
const envPrefix = "NIGHTVAULT_"

// TokenStorageType selects where OAuth tokens are persisted.
type TokenStorageType string

const (
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
)

// Config is the static application configuration. Mutable state (destination
// flags, cached folder IDs) lives in the preference store instead.
type Config struct {
	LogLevel     string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat    string `koanf:"log_format" validate:"oneof=text json"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	StateDir     string `koanf:"state_dir" validate:"required"`

	Auth   AuthConfig   `koanf:"auth"`
	Server ServerConfig `koanf:"server"`
	Backup BackupConfig `koanf:"backup"`
}

// AuthConfig configures the OAuth client and token persistence.
type AuthConfig struct {
	// ClientID is the Google OAuth client ID of this installation. Public
	// client: there is no secret.
	ClientID string           `koanf:"client_id" validate:"required"`
	Storage  TokenStorageType `koanf:"storage" validate:"oneof=keyring file env"`
}

// ServerConfig configures the local status API daemon.
type ServerConfig struct {
	Listen string `koanf:"listen" validate:"required,hostname_port"`
	// Interval enables periodic backup runs when set (Go duration syntax,
	// e.g. "6h"). Empty disables the scheduler.
	Interval string `koanf:"interval"`
}

// BackupConfig configures categories and the Drive folder naming.
type BackupConfig struct {
	// DriveFolder is the base name for per-category application folders on
	// Drive ("<DriveFolder>-<category>").
	DriveFolder string                    `koanf:"drive_folder" validate:"required"`
	Categories  map[string]CategoryConfig `koanf:"categories" validate:"required,min=1,dive"`
}

// CategoryConfig describes one backup category.
type CategoryConfig struct {
	// Source is the file snapshotted on each backup run.
	Source string `koanf:"source" validate:"required"`
}

// CategorySources returns the category -> source path mapping.
func (c *Config) CategorySources() map[string]string {
	sources := make(map[string]string, len(c.Backup.Categories))
	for name, category := range c.Backup.Categories {
		sources[name] = category.Source
	}
	return sources
}

// SchedulerInterval parses Server.Interval. Zero means disabled.
func (c *Config) SchedulerInterval() (time.Duration, error) {
	if c.Server.Interval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(c.Server.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid server.interval %q: %w", c.Server.Interval, err)
	}
	if interval < time.Minute {
		return 0, fmt.Errorf("server.interval %q is below the 1m minimum", c.Server.Interval)
	}
	return interval, nil
}

// defaultStateDir places state under the platform config directory.
func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".nightvault"
	}
	return filepath.Join(base, "nightvault")
}

// DefaultConfigPath is where LoadConfig looks when no --config flag is given.
func DefaultConfigPath() string {
	return filepath.Join(defaultStateDir(), "config.toml")
}

// LoadConfig layers configuration: built-in defaults, then the TOML file,
// then NIGHTVAULT_-prefixed environment variables. A missing file is only an
// error when the path was given explicitly.
func LoadConfig(path string) (*Config, error) {
	stateDir := defaultStateDir()

	k := koanf.New(".")

	defaults := map[string]any{
		"log_level":           "info",
		"log_format":          "text",
		"state_dir":           stateDir,
		"auth.storage":        string(TokenStorageTypeKeyring),
		"server.listen":       "127.0.0.1:8632",
		"backup.drive_folder": "nightvault",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading config defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading config environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// A default category keeps first runs useful: back up the settings
	// export the host application writes into the state dir.
	if len(cfg.Backup.Categories) == 0 {
		cfg.Backup.Categories = map[string]CategoryConfig{
			"settings": {Source: filepath.Join(cfg.StateDir, "export", "settings.json")},
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.SchedulerInterval(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
