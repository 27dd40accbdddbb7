package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatFor("config.toml"))
	assert.Equal(t, FormatTOML, FormatFor("config"))
	assert.Equal(t, FormatYAML, FormatFor("config.yaml"))
	assert.Equal(t, FormatYAML, FormatFor("/etc/cdpdebug/CONFIG.YML"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("toml")
	require.NoError(t, err)
	assert.Equal(t, FormatTOML, f)

	_, err = ParseFormat("ini")
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseAs([]byte(`
endpoint: http://127.0.0.1:9229
logging:
  level: warn
session:
  event_log_size: 16
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9229", cfg.Endpoint)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 16, cfg.Session.EventLogSize)
	assert.Equal(t, DefaultPrompt, cfg.Shell.Prompt)
}

func TestParseYAMLEmpty(t *testing.T) {
	cfg, err := ParseAs(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseYAMLUnknownKey(t *testing.T) {
	_, err := ParseAs([]byte("endpoint: x\ncolour: red\n"), FormatYAML)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
	assert.Contains(t, perr.Message, "colour")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("target: admin\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Target)
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Target = "app"
	cfg.Session.EventLogSize = 32

	data, err := cfg.MarshalAs(FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "event_log_size: 32")

	back, err := ParseAs(data, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
