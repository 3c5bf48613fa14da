// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulse-chat/pulse/lib/version"
)

// Config is the complete client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Retry   RetryConfig   `yaml:"retry"`
	Paths   PathsConfig   `yaml:"paths"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig describes the backend endpoint and the handshake the
// client presents to it.
type ServerConfig struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL string `yaml:"url"`

	// APIKey is sent with the websocket upgrade as X-Tinode-APIKey.
	APIKey string `yaml:"api_key"`

	// ProtocolVersion is the "ver" field of the hi handshake.
	ProtocolVersion string `yaml:"protocol_version"`

	// UserAgent is the "ua" field of the hi handshake.
	UserAgent string `yaml:"user_agent"`

	// Language is the "lang" field of the hi handshake.
	Language string `yaml:"language"`
}

// SessionConfig holds the timing and sizing knobs of the sync layer.
type SessionConfig struct {
	// HistoryPageSize is the page limit for subscribe-with-history and
	// loadOlder requests.
	HistoryPageSize int `yaml:"history_page_size"`

	// SendTimeout bounds how long a published message may stay
	// unconfirmed before a send timeout is surfaced.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// TypingExpiry is how long a typing indicator lasts without a
	// refreshing event.
	TypingExpiry time.Duration `yaml:"typing_expiry"`

	// SearchDebounce is the quiet period after the last keystroke
	// before a directory search is sent.
	SearchDebounce time.Duration `yaml:"search_debounce"`

	// SearchMinLength is the shortest query, in characters, that is
	// sent to the server.
	SearchMinLength int `yaml:"search_min_length"`
}

// RetryConfig is the exponential backoff the terminal client applies
// to Connect.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`

	// MaxElapsed of zero retries forever.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// PathsConfig locates local state.
type PathsConfig struct {
	// State is the directory holding everything below.
	State string `yaml:"state"`

	// Identity is the age identity that seals the credential file.
	Identity string `yaml:"identity"`

	// Credentials is the sealed session token file.
	Credentials string `yaml:"credentials"`

	// History is the SQLite message cache. Empty disables caching.
	History string `yaml:"history"`
}

// LogConfig configures the slog handler built by the command.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File receives log output. Empty means stderr, which the chat
	// command refuses while the terminal UI owns the screen.
	File string `yaml:"file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the configuration every loaded file is merged over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	state := filepath.Join(homeDir, ".local", "state", "pulse")

	return &Config{
		Server: ServerConfig{
			URL:             "ws://localhost:6060/v0/channels",
			ProtocolVersion: "0.25",
			UserAgent:       version.UserAgent(),
			Language:        "en-US",
		},
		Session: SessionConfig{
			HistoryPageSize: 20,
			SendTimeout:     10 * time.Second,
			TypingExpiry:    3 * time.Second,
			SearchDebounce:  500 * time.Millisecond,
			SearchMinLength: 3,
		},
		Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxElapsed:      5 * time.Minute,
		},
		Paths: PathsConfig{
			State:       state,
			Identity:    "${PULSE_STATE}/identity.txt",
			Credentials: "${PULSE_STATE}/credentials.age",
			History:     "${PULSE_STATE}/history.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by PULSE_CONFIG. When the variable is
// unset the defaults are returned unchanged, so the client runs with
// no file at all.
func Load() (*Config, error) {
	path := os.Getenv("PULSE_CONFIG")
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads the file at path over Default and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["PULSE_STATE"] = c.Paths.State

	c.Paths.Identity = expandVars(c.Paths.Identity, vars)
	c.Paths.Credentials = expandVars(c.Paths.Credentials, vars)
	c.Paths.History = expandVars(c.Paths.History, vars)
	c.Log.File = expandVars(c.Log.File, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if parsed, err := url.Parse(c.Server.URL); err != nil {
		errs = append(errs, fmt.Errorf("server.url: %w", err))
	} else if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("server.url scheme must be ws or wss, got %q", parsed.Scheme))
	}
	if c.Server.ProtocolVersion == "" {
		errs = append(errs, errors.New("server.protocol_version is required"))
	}

	if c.Session.HistoryPageSize <= 0 {
		errs = append(errs, errors.New("session.history_page_size must be positive"))
	}
	for name, value := range map[string]time.Duration{
		"session.send_timeout":    c.Session.SendTimeout,
		"session.typing_expiry":   c.Session.TypingExpiry,
		"session.search_debounce": c.Session.SearchDebounce,
		"retry.initial_interval":  c.Retry.InitialInterval,
		"retry.max_interval":      c.Retry.MaxInterval,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Session.SearchMinLength < 1 {
		errs = append(errs, errors.New("session.search_min_length must be at least 1"))
	}
	if c.Retry.MaxElapsed < 0 {
		errs = append(errs, errors.New("retry.max_elapsed must not be negative"))
	}

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Paths.Identity == "" {
		errs = append(errs, errors.New("paths.identity is required"))
	}
	if c.Paths.Credentials == "" {
		errs = append(errs, errors.New("paths.credentials is required"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates the state directory (0700).
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	return nil
}
