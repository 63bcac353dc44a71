// Package config loads hourbook settings from JSONC files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/shopspring/decimal"
	"github.com/tailscale/hujson"
)

const (
	// Dir is the per-project state directory.
	Dir = ".hourbook"
	// FileName is the config file name inside Dir and the global config dir.
	FileName = "config.json"
)

var (
	ErrInvalid      = errors.New("invalid config")
	ErrFileNotFound = errors.New("config file not found")
)

// Config holds all configuration options.
type Config struct {
	DBPath               string          `json:"db_path"`
	SnapshotPath         string          `json:"snapshot_path"`
	Owner                string          `json:"owner"`
	DefaultHourlyRate    decimal.Decimal `json:"default_hourly_rate"`
	DefaultTaxPercentage decimal.Decimal `json:"default_tax_percentage"`
	WebPort              int             `json:"web_port"`
	LogLevel             string          `json:"log_level"`
	AutoSnapshot         bool            `json:"auto_snapshot"`
}

// Overrides holds values that replace loaded settings. Nil fields are left
// alone, so a file or flag can set a value to its zero.
type Overrides struct {
	DBPath               *string          `json:"db_path,omitempty"`
	SnapshotPath         *string          `json:"snapshot_path,omitempty"`
	Owner                *string          `json:"owner,omitempty"`
	DefaultHourlyRate    *decimal.Decimal `json:"default_hourly_rate,omitempty"`
	DefaultTaxPercentage *decimal.Decimal `json:"default_tax_percentage,omitempty"`
	WebPort              *int             `json:"web_port,omitempty"`
	LogLevel             *string          `json:"log_level,omitempty"`
	AutoSnapshot         *bool            `json:"auto_snapshot,omitempty"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DBPath:       filepath.Join(Dir, "hourbook.db"),
		SnapshotPath: filepath.Join(Dir, "snapshot.jsonl"),
		Owner:        "local",
		WebPort:      8000,
		LogLevel:     "info",
		AutoSnapshot: true,
	}
}

// GlobalPath returns the path of the global config file. It uses
// $XDG_CONFIG_HOME/hourbook/config.json if set, otherwise
// ~/.config/hourbook/config.json, and "" if neither can be determined.
func GlobalPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok && after != "" {
			return filepath.Join(after, "hourbook", FileName)
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hourbook", FileName)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "hourbook", FileName)
	}

	return ""
}

// Load builds the configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config
//  3. Project config at .hourbook/config.json, if present
//  4. Explicit config file via configPath, if non-empty
//  5. Command-line overrides
func Load(workDir, configPath string, overrides Overrides, env []string) (Config, Sources, error) {
	cfg := Default()
	var sources Sources

	if path := GlobalPath(env); path != "" {
		o, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, Sources{}, err
		}
		if loaded {
			cfg = merge(cfg, o)
			sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, Dir, FileName)
	o, loaded, err := loadFile(projectPath, false)
	if err != nil {
		return Config{}, Sources{}, err
	}
	if loaded {
		cfg = merge(cfg, o)
		sources.Project = projectPath
	}

	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}
		o, _, err := loadFile(configPath, true)
		if err != nil {
			return Config{}, Sources{}, err
		}
		cfg = merge(cfg, o)
		sources.Project = configPath
	}

	cfg = merge(cfg, overrides)

	if err := Validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}
	return cfg, sources, nil
}

// loadFile reads a config file. If mustExist is false a missing file is not
// an error and reports loaded=false.
func loadFile(path string, mustExist bool) (Overrides, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Overrides{}, false, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return Overrides{}, false, nil
		}
		return Overrides{}, false, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	o, err := Parse(data)
	if err != nil {
		return Overrides{}, false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}
	return o, true, nil
}

// Parse decodes JSONC config data. Comments and trailing commas are allowed.
func Parse(data []byte) (Overrides, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Overrides{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var o Overrides
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return Overrides{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return o, nil
}

func merge(base Config, o Overrides) Config {
	if o.DBPath != nil {
		base.DBPath = *o.DBPath
	}
	if o.SnapshotPath != nil {
		base.SnapshotPath = *o.SnapshotPath
	}
	if o.Owner != nil {
		base.Owner = *o.Owner
	}
	if o.DefaultHourlyRate != nil {
		base.DefaultHourlyRate = *o.DefaultHourlyRate
	}
	if o.DefaultTaxPercentage != nil {
		base.DefaultTaxPercentage = *o.DefaultTaxPercentage
	}
	if o.WebPort != nil {
		base.WebPort = *o.WebPort
	}
	if o.LogLevel != nil {
		base.LogLevel = *o.LogLevel
	}
	if o.AutoSnapshot != nil {
		base.AutoSnapshot = *o.AutoSnapshot
	}
	return base
}

var maxTax = decimal.NewFromInt(100)

// Validate checks a merged configuration.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		return fmt.Errorf("%w: owner must not be empty", ErrInvalid)
	}
	if cfg.DefaultHourlyRate.IsNegative() {
		return fmt.Errorf("%w: default_hourly_rate must not be negative", ErrInvalid)
	}
	if cfg.DefaultTaxPercentage.IsNegative() || cfg.DefaultTaxPercentage.GreaterThan(maxTax) {
		return fmt.Errorf("%w: default_tax_percentage must be between 0 and 100", ErrInvalid)
	}
	if cfg.WebPort < 0 || cfg.WebPort > 65535 {
		return fmt.Errorf("%w: web_port %d is out of range", ErrInvalid, cfg.WebPort)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}

// Write stores cfg as indented JSON at path, replacing any existing file
// atomically.
func Write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
