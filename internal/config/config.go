// Package config loads CLI settings from defaults, an optional config file
// and FORMLOGIC_ environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/goliatone/go-formlogic/pkg/form"
	"github.com/goliatone/go-formlogic/pkg/httpcond"
	"github.com/goliatone/go-formlogic/pkg/submission"
)

// EnvPrefix prefixes environment overrides, e.g. FORMLOGIC_LOG_LEVEL.
const EnvPrefix = "FORMLOGIC"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the resolved CLI configuration.
type Config struct {
	Exclusion    submission.Exclusion
	Sanitize     bool
	HTTPTimeout  time.Duration
	HTTPDebounce time.Duration
	LogLevel     slog.Level
	LogFormat    string
}

// Load resolves configuration with flags applied by the caller taking
// precedence over environment, config file and defaults.
func Load(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

// LoadWith resolves configuration from an existing viper instance, letting
// the CLI bind its flags first.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	return load(v, configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetDefault("exclusion.hidden", true)
	v.SetDefault("exclusion.disabled", true)
	v.SetDefault("exclusion.readonly", true)
	v.SetDefault("sanitize", false)
	v.SetDefault("http.timeout", httpcond.DefaultTimeout.String())
	v.SetDefault("http.debounce", httpcond.DefaultDebounce.String())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatText)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Exclusion: submission.Exclusion{
			ExcludeValueIfHidden:   submission.Bool(v.GetBool("exclusion.hidden")),
			ExcludeValueIfDisabled: submission.Bool(v.GetBool("exclusion.disabled")),
			ExcludeValueIfReadonly: submission.Bool(v.GetBool("exclusion.readonly")),
		},
		Sanitize:     v.GetBool("sanitize"),
		HTTPTimeout:  v.GetDuration("http.timeout"),
		HTTPDebounce: v.GetDuration("http.debounce"),
		LogFormat:    strings.ToLower(v.GetString("log.format")),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive, got %v", cfg.HTTPTimeout)
	}
	if cfg.HTTPDebounce < 0 {
		return fmt.Errorf("config: http.debounce must not be negative, got %v", cfg.HTTPDebounce)
	}
	switch cfg.LogFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("config: log.format must be %q or %q, got %q", FormatText, FormatJSON, cfg.LogFormat)
	}
	return nil
}

// Logger builds the slog logger described by the config.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// FormOptions translates the config into form options.
func (c *Config) FormOptions(logger *slog.Logger) []form.Option {
	opts := []form.Option{
		form.WithGlobalExclusion(c.Exclusion),
		form.WithSanitize(c.Sanitize),
		form.WithTimeout(c.HTTPTimeout),
		form.WithLogger(logger),
	}
	if c.HTTPDebounce > 0 {
		opts = append(opts, form.WithDebounce(c.HTTPDebounce))
	}
	return opts
}
