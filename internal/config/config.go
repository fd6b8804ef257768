// Package config loads ground's settings from a YAML file and GROUND_*
// environment variables.
//
// Precedence, highest first: flags bound by the caller, environment,
// config file, defaults. Nested keys map to environment variables with
// dots replaced by underscores, so log.level is GROUND_LOG_LEVEL.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "GROUND"

// Backend names a storage adapter.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// Config is the full configuration.
type Config struct {
	// Backend selects the storage adapter.
	Backend Backend `mapstructure:"backend"`

	// Path is the SQLite database file or the badger directory. An empty
	// badger path keeps everything in memory.
	Path string `mapstructure:"path"`

	// IDBlockSize is how many ids are leased per round trip.
	IDBlockSize int64 `mapstructure:"id_block_size"`

	// IDFile, when set, leases ids from a lock-guarded counter file
	// instead of the storage backend.
	IDFile string `mapstructure:"id_file"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:     BackendSQLite,
		Path:        "ground.db",
		IDBlockSize: 64,
		Log:         LogConfig{Level: "info"},
	}
}

// NewViper returns a viper instance with defaults and environment
// binding in place. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("backend", string(d.Backend))
	v.SetDefault("path", d.Path)
	v.SetDefault("id_block_size", d.IDBlockSize)
	v.SetDefault("id_file", d.IDFile)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (if any) into v and decodes the
// result. A nil v uses NewViper.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if c.Path == "" {
			errs = append(errs, errors.New("path: sqlite needs a database file"))
		}
	case BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("backend: unknown backend %q (want sqlite or badger)", c.Backend))
	}
	if c.IDBlockSize <= 0 {
		errs = append(errs, fmt.Errorf("id_block_size: must be positive, got %d", c.IDBlockSize))
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
