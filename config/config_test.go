package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofiworker/gpcap/ipfrag"
	"github.com/sofiworker/gpcap/plog"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpcap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	l, err := Load()
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, ipfrag.DefaultTTL, cfg.Fragment.TTL)
	assert.False(t, cfg.Interpreter.SkipUnknownLinkTypes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, plog.ConsoleEncoding, cfg.Log.Encoding)
	assert.True(t, cfg.Log.Stdout)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
fragment:
  ttl: 16
interpreter:
  skip_unknown_link_types: true
log:
  level: debug
  encoding: json
  rotation:
    max_backups: 2
`)

	l, err := Load(WithFile(path))
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, 16, cfg.Fragment.TTL)
	assert.True(t, cfg.Interpreter.SkipUnknownLinkTypes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, plog.JSONEncoding, cfg.Log.Encoding)
	assert.Equal(t, 2, cfg.Log.Rotation.MaxBackups)
	// Untouched keys keep their defaults.
	assert.Equal(t, plog.DefaultConfig().Rotation.MaxSizeMB, cfg.Log.Rotation.MaxSizeMB)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GPCAP_FRAGMENT_TTL", "32")
	t.Setenv("GPCAP_LOG_LEVEL", "error")

	l, err := Load()
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, 32, cfg.Fragment.TTL)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestLoadBadFile(t *testing.T) {
	path := writeConfigFile(t, "fragment: [not a map")
	_, err := Load(WithFile(path))
	assert.Error(t, err)
}
