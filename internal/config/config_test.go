package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cdpdebug/internal/logging"
)

func init() {
	// Tests point HOME at temporary directories.
	homedir.DisableCache = true
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Empty(t, cfg.Target)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel())
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout())
	assert.Equal(t, DefaultEventLogSize, cfg.Session.EventLogSize)
	assert.Equal(t, DefaultPrompt, cfg.Shell.Prompt)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoint = "http://127.0.0.1:9333"
target = "localhost:3000"

[logging]
level = "debug"

[session]
request_timeout = "5s"
event_log_size = 64

[shell]
prompt = "> "
`))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9333", cfg.Endpoint)
	assert.Equal(t, "localhost:3000", cfg.Target)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 64, cfg.Session.EventLogSize)
	assert.Equal(t, "> ", cfg.Shell.Prompt)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultHistoryFile, cfg.Shell.HistoryFile)
	assert.Empty(t, cfg.Logging.File)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("endpoint = \n"))
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Positive(t, perr.Line)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte(`
[session]
request_timout = "5s"
`))
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "unknown setting")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = " " }, "endpoint"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad timeout", func(c *Config) { c.Session.RequestTimeout = "soon" }, "session.request_timeout"},
		{"zero timeout", func(c *Config) { c.Session.RequestTimeout = "0s" }, "session.request_timeout"},
		{"negative log size", func(c *Config) { c.Session.EventLogSize = -1 }, "session.event_log_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.path, verr.Path)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CDPDEBUG_ENDPOINT":        "ws://127.0.0.1:9229/abc",
		"CDPDEBUG_LOG_LEVEL":       "WARN",
		"CDPDEBUG_REQUEST_TIMEOUT": "2s",
		"CDPDEBUG_EVENT_LOG_SIZE":  "10",
		"CDPDEBUG_PROMPT":          "dbg> ",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	cfg.ApplyEnv(lookup)

	assert.Equal(t, "ws://127.0.0.1:9229/abc", cfg.Endpoint)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 10, cfg.Session.EventLogSize)
	assert.Equal(t, "dbg> ", cfg.Shell.Prompt)
	assert.Equal(t, DefaultHistoryFile, cfg.Shell.HistoryFile)
}

func TestApplyEnvBadSize(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "CDPDEBUG_EVENT_LOG_SIZE" {
			return "lots", true
		}
		return "", false
	})

	assert.ErrorIs(t, cfg.Validate(), ErrValidationFailed)
}

func TestEnvVars(t *testing.T) {
	vars := EnvVars()
	assert.Contains(t, vars, "CDPDEBUG_ENDPOINT")
	assert.Contains(t, vars, "CDPDEBUG_LOG_LEVEL")
	assert.Len(t, vars, len(envMapping))
	assert.IsIncreasing(t, vars)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
target = "app"

[logging]
level = "error"
`)
	t.Setenv("CDPDEBUG_TARGET", "admin")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logging.LevelError, cfg.LogLevel())
	// Environment overrides the file.
	assert.Equal(t, "admin", cfg.Target)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Target = "app"

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "request_timeout")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/.cdpdebug_history")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cdpdebug_history"), got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ExpandPath("/tmp/../tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got)
}

func TestClone(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Shell.Prompt = "changed"

	assert.Equal(t, DefaultPrompt, cfg.Shell.Prompt)
}
