// Package config loads runtime settings for the capture tooling from an
// optional file and GPCAP_-prefixed environment variables, with live reload
// of the file when watching is enabled.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sofiworker/gpcap/ipfrag"
	"github.com/sofiworker/gpcap/plog"
)

const envPrefix = "GPCAP"

// FragmentConfig tunes the IPv4 fragment manager.
type FragmentConfig struct {
	TTL int `mapstructure:"ttl"`
}

// InterpreterConfig tunes the protocol interpreter.
type InterpreterConfig struct {
	SkipUnknownLinkTypes bool `mapstructure:"skip_unknown_link_types"`
}

// Config is the full runtime configuration.
type Config struct {
	Fragment    FragmentConfig    `mapstructure:"fragment"`
	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Log         plog.Config       `mapstructure:"log"`
}

func Default() Config {
	return Config{
		Fragment: FragmentConfig{TTL: ipfrag.DefaultTTL},
		Log:      plog.DefaultConfig(),
	}
}

// Loader reads configuration once at startup and, when watching, keeps the
// current snapshot fresh as the file changes. Config returns a copy, so
// callers never see a half-applied reload.
type Loader struct {
	v        *viper.Viper
	mu       sync.RWMutex
	current  Config
	onChange func(Config)
}

// Option configures a Loader.
type Option func(*Loader)

// WithFile points the loader at a config file. Without it only defaults and
// environment variables apply.
func WithFile(path string) Option {
	return func(l *Loader) {
		l.v.SetConfigFile(path)
	}
}

// WithOnChange registers a callback invoked with the new snapshot after each
// successful file reload. Registering a callback enables file watching.
func WithOnChange(fn func(Config)) Option {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// Load builds a Loader and reads the initial configuration.
func Load(opts ...Option) (*Loader, error) {
	l := &Loader{v: viper.New()}

	setDefaults(l.v, Default())
	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	for _, opt := range opts {
		opt(l)
	}

	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.v.ConfigFileUsed(), err)
		}
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	l.current = cfg

	if l.onChange != nil && l.v.ConfigFileUsed() != "" {
		l.v.OnConfigChange(func(fsnotify.Event) {
			cfg, err := l.unmarshal()
			if err != nil {
				return
			}
			l.mu.Lock()
			l.current = cfg
			l.mu.Unlock()
			l.onChange(cfg)
		})
		l.v.WatchConfig()
	}
	return l, nil
}

// Config returns the current snapshot.
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Loader) unmarshal() (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it even when
// no config file mentions it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("fragment.ttl", d.Fragment.TTL)
	v.SetDefault("interpreter.skip_unknown_link_types", d.Interpreter.SkipUnknownLinkTypes)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", string(d.Log.Encoding))
	v.SetDefault("log.stdout", d.Log.Stdout)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.rotation.max_size_mb", d.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_age_days", d.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)
}
