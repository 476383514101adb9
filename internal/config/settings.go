package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chr1sbest/stepper/internal/resilience"
)

// EnvPrefix is the prefix for environment overrides, e.g. STEPPER_LOG_LEVEL.
const EnvPrefix = "STEPPER"

// Settings holds CLI-wide settings. They are resolved with this priority:
//  1. command-line flags
//  2. STEPPER_* environment variables
//  3. the settings file (--config, or <user config dir>/stepper/config.yaml)
//  4. DefaultSettings
type Settings struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"` // "text" or "json"
	LogFile   string        `mapstructure:"log_file"`
	StateDir  string        `mapstructure:"state_dir"`
	Trace     bool          `mapstructure:"trace"`
	Plain     bool          `mapstructure:"plain"`
	Retry     RetrySettings `mapstructure:"retry"`
}

// RetrySettings is the retry config applied to steps that do not set one.
type RetrySettings struct {
	Times   int           `mapstructure:"times"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig converts the settings to a resilience.RetryConfig.
func (r RetrySettings) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{Times: r.Times, Timeout: r.Timeout}
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	def := resilience.DefaultRetryConfig()
	return Settings{
		LogLevel:  "info",
		LogFormat: "text",
		StateDir:  ".stepper",
		Retry: RetrySettings{
			Times:   def.Times,
			Timeout: def.Timeout,
		},
	}
}

// SetDefaults registers DefaultSettings with v so every key is known to
// viper, which AutomaticEnv needs for Unmarshal to see env overrides.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("plain", d.Plain)
	v.SetDefault("retry.times", d.Retry.Times)
	v.SetDefault("retry.timeout", d.Retry.Timeout)
}

// SettingsDir returns the directory searched for config.yaml.
func SettingsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stepper")
}

// LoadSettings reads settings into v and decodes them.
//
// An explicit configFile must exist. Without one, a missing file in
// SettingsDir is not an error.
func LoadSettings(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := SettingsDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q (want text or json)", s.LogFormat)
	}
	return &s, nil
}
