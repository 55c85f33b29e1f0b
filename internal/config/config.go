// Package config loads tdpctl's configuration from /etc/tdpctl.toml,
// environment overrides and command line flags, in that order of
// precedence (flags win).
package config

import (
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/profile"
	"codeberg.org/mutker/tdpctl/internal/state"
)

const (
	DefaultLogLevel = "info"

	configName = "tdpctl"
	configType = "toml"
	configPath = "/etc"
	envPrefix  = "TDPCTL"

	defaultInterval     = 5
	defaultDebounce     = 3
	defaultApplyTimeout = 10
	defaultRyzenadj     = "ryzenadj"
	defaultDatabase     = "/var/lib/tdpctl/telemetry.db"
)

// Preferences is the configured power source to profile mapping.
type Preferences struct {
	AC      string `mapstructure:"ac"`
	Battery string `mapstructure:"battery"`
}

type Config struct {
	Interval     int         `mapstructure:"interval"`
	Debounce     int         `mapstructure:"debounce"`
	ApplyTimeout int         `mapstructure:"apply_timeout"`
	LogLevel     string      `mapstructure:"log_level"`
	StatePath    string      `mapstructure:"state_path"`
	Ryzenadj     string      `mapstructure:"ryzenadj"`
	Telemetry    bool        `mapstructure:"telemetry"`
	Database     string      `mapstructure:"database"`
	Preferences  Preferences `mapstructure:"preferences"`

	// User-supplied profiles from [profiles.<name>] tables, merged with
	// the built-ins by the catalog.
	Profiles []profile.Profile `mapstructure:"-"`
}

// Option adjusts how the configuration is loaded.
type Option func(*loader)

type loader struct {
	configFile string
	flags      *pflag.FlagSet
}

// WithConfigFile uses an explicit configuration file path.
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithFlags binds a parsed flag set; set flags override file values.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(l *loader) {
		l.flags = fs
	}
}

// Load reads and validates the configuration. The TDPCTL_CONFIG
// environment variable overrides the default file location.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("debounce", defaultDebounce)
	v.SetDefault("apply_timeout", defaultApplyTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("state_path", state.DefaultPath)
	v.SetDefault("ryzenadj", defaultRyzenadj)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("preferences.ac", "performance")
	v.SetDefault("preferences.battery", "balanced")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	configFile := l.configFile
	if configFile == "" {
		configFile = os.Getenv(envPrefix + "_CONFIG")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	if l.flags != nil {
		if err := v.BindPFlags(l.flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
		// The CLI spells this one with a dash.
		if f := l.flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log_level", f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	profiles, err := userProfiles(v)
	if err != nil {
		return nil, err
	}
	cfg.Profiles = profiles

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func userProfiles(v *viper.Viper) ([]profile.Profile, error) {
	errFactory := errors.New()

	raw := map[string]profile.Profile{}
	if err := v.UnmarshalKey("profiles", &raw); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	profiles := make([]profile.Profile, 0, len(raw))
	for name, p := range raw {
		p.Name = name
		profiles = append(profiles, p)
	}

	return profiles, nil
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if c.Debounce < 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, "debounce must be at least 1")
	}

	if c.ApplyTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "apply_timeout must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.StatePath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "state_path must not be empty")
	}

	if c.Preferences.AC == "" || c.Preferences.Battery == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "preferences must name a profile per power source")
	}

	return nil
}
