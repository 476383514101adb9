package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chr1sbest/stepper/internal/resilience"
)

func isolateSettingsDir(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoadSettings_Defaults(t *testing.T) {
	isolateSettingsDir(t)

	s, err := LoadSettings(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultSettings(), *s)
	assert.Equal(t, resilience.DefaultRetryConfig(), s.Retry.RetryConfig())
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	isolateSettingsDir(t)
	t.Setenv("STEPPER_LOG_LEVEL", "debug")
	t.Setenv("STEPPER_RETRY_TIMES", "6")
	t.Setenv("STEPPER_RETRY_TIMEOUT", "150ms")

	s, err := LoadSettings(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 6, s.Retry.Times)
	assert.Equal(t, 150*time.Millisecond, s.Retry.Timeout)
}

func TestLoadSettings_ExplicitFile(t *testing.T) {
	isolateSettingsDir(t)
	path := filepath.Join(t.TempDir(), "stepper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_format: json\nstate_dir: /tmp/runs\nretry:\n  times: 2\n"), 0o644))

	s, err := LoadSettings(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, "/tmp/runs", s.StateDir)
	assert.Equal(t, 2, s.Retry.Times)
	assert.Equal(t, time.Second, s.Retry.Timeout)
}

func TestLoadSettings_MissingExplicitFile(t *testing.T) {
	isolateSettingsDir(t)

	_, err := LoadSettings(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSettings_InvalidLogFormat(t *testing.T) {
	isolateSettingsDir(t)
	t.Setenv("STEPPER_LOG_FORMAT", "xml")

	_, err := LoadSettings(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
