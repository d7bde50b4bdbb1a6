// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
	"github.com/marcelocantos/ledgerchain/internal/store"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "LEDGERCHAIN_CONFIG"

// Config holds the global ledgerchain configuration.
type Config struct {
	Ledger LedgerConfig `yaml:"ledger"`
	Verify VerifyConfig `yaml:"verify"`
	Log    LogConfig    `yaml:"log"`
	MCP    MCPConfig    `yaml:"mcp"`
}

// LedgerConfig locates the ledger.
type LedgerConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // auto, jsonl, yaml, postgres
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// VerifyConfig controls chain verification.
type VerifyConfig struct {
	Mode string `yaml:"mode"` // fail-fast, exhaustive
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MCPConfig controls the MCP server.
type MCPConfig struct {
	Name string `yaml:"name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Ledger: LedgerConfig{
			Path:   filepath.Join(home, ".local", "share", "ledgerchain", "ledger.jsonl"),
			Format: string(store.FormatAuto),
			Table:  store.DefaultTable,
		},
		Verify: VerifyConfig{
			Mode: ledger.ModeFailFast.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
		MCP: MCPConfig{
			Name: "ledgerchain",
		},
	}
}

// Load reads the config from $LEDGERCHAIN_CONFIG or the standard location
// (~/.config/ledgerchain/config.yaml). If the file doesn't exist, returns
// the default config.
func Load() (*Config, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return LoadFrom(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(filepath.Join(home, ".config", "ledgerchain", "config.yaml"))
}

// LoadFrom reads the config from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Expand ~ in ledger path.
	if cfg.Ledger.Path != "" && cfg.Ledger.Path[0] == '~' {
		home, _ := os.UserHomeDir()
		cfg.Ledger.Path = filepath.Join(home, cfg.Ledger.Path[1:])
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown enumerated values.
func (c *Config) Validate() error {
	if _, err := store.ParseFormat(c.Ledger.Format); err != nil {
		return err
	}
	if _, err := ledger.ParseMode(c.Verify.Mode); err != nil {
		return err
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", c.Log.Level)
	}
	return nil
}

// SourceOptions returns the store options for the configured ledger.
func (c *Config) SourceOptions() store.Options {
	format, _ := store.ParseFormat(c.Ledger.Format)
	return store.Options{
		Path:   c.Ledger.Path,
		Format: format,
		DSN:    c.Ledger.DSN,
		Table:  c.Ledger.Table,
	}
}

// Mode returns the configured verification mode.
func (c *Config) Mode() ledger.Mode {
	m, _ := ledger.ParseMode(c.Verify.Mode)
	return m
}
