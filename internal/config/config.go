package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cdpdebug/internal/logging"
)

// Defaults.
const (
	DefaultEndpoint       = "http://localhost:9222"
	DefaultRequestTimeout = 30 * time.Second
	DefaultEventLogSize   = 256
	DefaultHistoryFile    = "~/.cdpdebug_history"
	DefaultPrompt         = "(cdp) "
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "~/.config/cdpdebug/config.toml"

// Config is the complete cdpdebug configuration.
type Config struct {
	// Endpoint is the DevTools HTTP endpoint or a ws:// debugger URL.
	Endpoint string `toml:"endpoint" yaml:"endpoint"`

	// Target selects the page whose URL contains this string. Empty picks
	// the first debuggable target.
	Target string `toml:"target" yaml:"target"`

	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Session SessionConfig `toml:"session" yaml:"session"`
	Shell   ShellConfig   `toml:"shell" yaml:"shell"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
	// File receives log output. Empty means stderr.
	File string `toml:"file" yaml:"file"`
}

// SessionConfig configures the protocol session.
type SessionConfig struct {
	// RequestTimeout bounds each command round-trip, e.g. "30s".
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout"`
	// EventLogSize is the number of recent events kept for diagnostics.
	EventLogSize int `toml:"event_log_size" yaml:"event_log_size"`
}

// ShellConfig configures the interactive shell.
type ShellConfig struct {
	HistoryFile string `toml:"history_file" yaml:"history_file"`
	Prompt      string `toml:"prompt" yaml:"prompt"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Logging: LoggingConfig{
			Level: "info",
		},
		Session: SessionConfig{
			RequestTimeout: DefaultRequestTimeout.String(),
			EventLogSize:   DefaultEventLogSize,
		},
		Shell: ShellConfig{
			HistoryFile: DefaultHistoryFile,
			Prompt:      DefaultPrompt,
		},
	}
}

// Load builds the configuration from defaults, the file at path and the
// environment. An empty path reads DefaultPath, which may be missing; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := cfg.decode(expanded, data, FormatFor(expanded)); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, expanded)
		}
	default:
		return nil, fmt.Errorf("reading config file %s: %w", expanded, err)
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return ParseAs(data, FormatTOML)
}

// ParseAs decodes data in the given format over the defaults without
// consulting the environment.
func ParseAs(data []byte, format Format) (*Config, error) {
	cfg := Default()
	if err := cfg.decode("<input>", data, format); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays data onto c. Unknown keys are rejected.
func (c *Config) decode(source string, data []byte, format Format) error {
	if format == FormatYAML {
		return c.decodeYAML(source, data)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(c); err != nil {
		perr := &ParseError{
			Path:    source,
			Message: err.Error(),
			Err:     err,
		}

		var decodeErr *toml.DecodeError
		var strictErr *toml.StrictMissingError
		switch {
		case errors.As(err, &decodeErr):
			perr.Line, perr.Column = decodeErr.Position()
		case errors.As(err, &strictErr):
			perr.Message = "unknown setting: " + strings.TrimSpace(strictErr.String())
		}
		return perr
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &ValidationError{Path: "endpoint", Value: c.Endpoint, Message: "must not be empty"}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{
			Path:    "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of debug, info, warn, error",
		}
	}

	d, err := time.ParseDuration(c.Session.RequestTimeout)
	if err != nil {
		return &ValidationError{Path: "session.request_timeout", Value: c.Session.RequestTimeout, Message: "not a duration"}
	}
	if d <= 0 {
		return &ValidationError{Path: "session.request_timeout", Value: c.Session.RequestTimeout, Message: "must be positive"}
	}

	if c.Session.EventLogSize < 0 {
		return &ValidationError{Path: "session.event_log_size", Value: c.Session.EventLogSize, Message: "must not be negative"}
	}
	return nil
}

// RequestTimeout returns the parsed per-command timeout, falling back to
// DefaultRequestTimeout when the setting is unusable.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Session.RequestTimeout)
	if err != nil || d <= 0 {
		return DefaultRequestTimeout
	}
	return d
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}

// Marshal encodes the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return c.MarshalAs(FormatTOML)
}

// MarshalAs encodes the configuration in the given format.
func (c *Config) MarshalAs(format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(c)
	}
	return toml.Marshal(c)
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// ExpandPath expands a leading ~ to the user's home directory and cleans
// the result. Empty paths stay empty.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Clean(expanded), nil
}
