// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoscript settings from a YAML file and command-line
// flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/holoscript/internal/script"
	"github.com/holomush/holoscript/internal/xdg"
)

// Flag and file keys.
const (
	KeyScriptsDir      = "scripts-dir"
	KeyDataDir         = "data-dir"
	KeyExtension       = "extension"
	KeyWatch           = "watch"
	KeyWatchDebounceMS = "watch-debounce-ms"
	KeyLogFormat       = "log-format"
	KeyLogLevel        = "log-level"
	KeyMetricsAddr     = "metrics-addr"
)

// Config holds the settings of a holoscript process.
type Config struct {
	ScriptsDir      string `koanf:"scripts-dir" json:"scripts-dir,omitempty" yaml:"scripts-dir,omitempty" jsonschema:"description=Directory holding the managed script files"`
	DataDir         string `koanf:"data-dir" json:"data-dir,omitempty" yaml:"data-dir,omitempty" jsonschema:"description=Directory for per-module data files (empty: the scripts directory)"`
	Extension       string `koanf:"extension" json:"extension,omitempty" yaml:"extension,omitempty" jsonschema:"pattern=^\\.?[A-Za-z0-9]+$,description=Script file extension"`
	Watch           bool   `koanf:"watch" json:"watch,omitempty" yaml:"watch,omitempty" jsonschema:"description=Reload scripts when their files change"`
	WatchDebounceMS int    `koanf:"watch-debounce-ms" json:"watch-debounce-ms,omitempty" yaml:"watch-debounce-ms,omitempty" jsonschema:"minimum=0,description=Quiet period before a changed file is reloaded"`
	LogFormat       string `koanf:"log-format" json:"log-format,omitempty" yaml:"log-format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel        string `koanf:"log-level" json:"log-level,omitempty" yaml:"log-level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	MetricsAddr     string `koanf:"metrics-addr" json:"metrics-addr,omitempty" yaml:"metrics-addr,omitempty" jsonschema:"description=Metrics and health listen address (empty disables)"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ScriptsDir:      xdg.ScriptsDir(),
		DataDir:         xdg.ScriptDataDir(),
		Extension:       script.DefaultExtension,
		WatchDebounceMS: int(script.DefaultDebounce / time.Millisecond),
		LogFormat:       "json",
		LogLevel:        "info",
		MetricsAddr:     "127.0.0.1:9110",
	}
}

// WatchDebounce returns the watcher debounce as a duration.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if c.ScriptsDir == "" {
		return oops.In("config").With("key", KeyScriptsDir).Errorf("%s is required", KeyScriptsDir)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.In("config").With("key", KeyLogFormat).
			Errorf("%s must be 'json' or 'text', got %q", KeyLogFormat, c.LogFormat)
	}
	if c.WatchDebounceMS < 0 {
		return oops.In("config").With("key", KeyWatchDebounceMS).
			Errorf("%s must not be negative", KeyWatchDebounceMS)
	}
	return nil
}

// BindFlags registers one flag per setting on fs, defaulting to Default().
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyScriptsDir, d.ScriptsDir, "scripts directory")
	fs.String(KeyDataDir, d.DataDir, "data file directory (empty: the scripts directory)")
	fs.String(KeyExtension, d.Extension, "script file extension")
	fs.Bool(KeyWatch, d.Watch, "reload scripts when their files change")
	fs.Int(KeyWatchDebounceMS, d.WatchDebounceMS, "watcher quiet period in milliseconds")
	fs.String(KeyLogFormat, d.LogFormat, "log format (json or text)")
	fs.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	fs.String(KeyMetricsAddr, d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// Load reads the settings. Precedence is flags set on the command line,
// then the config file, then the flag defaults. An empty path falls back to
// the XDG config file when it exists. The file is checked against the JSON
// schema before it is applied.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(xdg.ConfigFile()); err == nil {
			path = xdg.ConfigFile()
		}
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied config path
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, oops.In("config").With("path", path).Wrapf(err, "config file not found")
			}
			return nil, oops.In("config").With("path", path).Wrapf(err, "read config file")
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.In("config").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.In("config").With("path", path).Wrapf(err, "parse config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.In("config").Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
