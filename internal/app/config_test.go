package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `
[auth]
client_id = "test-client.apps.googleusercontent.com"

[backup.categories.settings]
source = "/var/lib/nightvault/settings.json"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Auth.Storage != TokenStorageTypeKeyring {
		t.Errorf("Auth.Storage = %q, want keyring", cfg.Auth.Storage)
	}
	if cfg.Server.Listen != "127.0.0.1:8632" {
		t.Errorf("Server.Listen = %q, want 127.0.0.1:8632", cfg.Server.Listen)
	}
	if cfg.Backup.DriveFolder != "nightvault" {
		t.Errorf("Backup.DriveFolder = %q, want nightvault", cfg.Backup.DriveFolder)
	}
	if got := cfg.Backup.Categories["settings"].Source; got != "/var/lib/nightvault/settings.json" {
		t.Errorf("settings source = %q", got)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, `
log_level = "debug"
log_format = "json"
`+minimalConfig+`
[server]
listen = "127.0.0.1:9000"
interval = "6h"
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log settings = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}

	interval, err := cfg.SchedulerInterval()
	if err != nil {
		t.Fatalf("SchedulerInterval() error = %v", err)
	}
	if interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", interval)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("NIGHTVAULT_LOG_LEVEL", "warn")
	t.Setenv("NIGHTVAULT_AUTH__STORAGE", "file")

	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Auth.Storage != TokenStorageTypeFile {
		t.Errorf("Auth.Storage = %q, want file", cfg.Auth.Storage)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing client id", `
[backup.categories.settings]
source = "/tmp/settings.json"
`},
		{"bad log level", `
log_level = "verbose"
` + minimalConfig},
		{"bad storage backend", `
[auth]
client_id = "test-client.apps.googleusercontent.com"
storage = "vault"

[backup.categories.settings]
source = "/tmp/settings.json"
`},
		{"category without source", minimalConfig + `
[backup.categories.reports]
`},
		{"unparseable interval", minimalConfig + `
[server]
interval = "soon"
`},
		{"interval below minimum", minimalConfig + `
[server]
interval = "10s"
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfigFile(t, tt.content)); err == nil {
				t.Fatal("LoadConfig() succeeded, want error")
			}
		})
	}
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("LoadConfig() succeeded for missing explicit file, want error")
	}
}
