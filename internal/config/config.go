package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/core"
)

// EnvPrefix prefixes every environment override, e.g. CHATBUS_POLL_INTERVAL.
const EnvPrefix = "chatbus"

// DefaultInstance names the cursor of a process that sets no instance.
const DefaultInstance = "default"

// Config is the resolved process configuration.
type Config struct {
	Root            string        `mapstructure:"root"`
	Instance        string        `mapstructure:"instance"`
	DBPath          string        `mapstructure:"db_path"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	GapTimeout      time.Duration `mapstructure:"gap_timeout"`
	Retention       time.Duration `mapstructure:"retention"`
	PurgeEvery      int           `mapstructure:"purge_every"`
	MaxReadFailures int           `mapstructure:"max_read_failures"`
	MembershipTTL   time.Duration `mapstructure:"membership_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TypingExpiry    time.Duration `mapstructure:"typing_expiry"`
	Watch           bool          `mapstructure:"watch"`
	ReplayFromStart bool          `mapstructure:"replay_from_start"`
	LogLevel        string        `mapstructure:"log_level"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// LoadOptions control where configuration comes from. Flags that are set
// take precedence over the environment, which beats the config file.
type LoadOptions struct {
	ConfigFile string
	Flags      *pflag.FlagSet
	// DefaultInstance replaces DefaultInstance when no source sets one.
	DefaultInstance string
}

var flagKeys = map[string]string{
	"root":     "root",
	"instance": "instance",
	"db":       "db_path",
}

// Load resolves configuration from defaults, an optional config file, the
// environment and bound flags. Without an explicit file, <root>/chatbus.yaml
// is read when present.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return Config{}, err
	}
	if opts.Flags != nil {
		for name, key := range flagKeys {
			if flag := opts.Flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	path := opts.ConfigFile
	if path == "" {
		candidate := filepath.Join(v.GetString("root"), core.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config: %w", err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigFile = path
	if strings.TrimSpace(cfg.Instance) == "" {
		cfg.Instance = opts.DefaultInstance
		if cfg.Instance == "" {
			cfg.Instance = DefaultInstance
		}
	}
	if cfg.DBPath == "" && cfg.Root != "" {
		cfg.DBPath = filepath.Join(cfg.Root, core.DBFileName)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) error {
	root, err := core.DefaultRootDir()
	if err != nil {
		return fmt.Errorf("resolve default root: %w", err)
	}
	defaults := bus.DefaultConfig()
	v.SetDefault("root", root)
	v.SetDefault("instance", "")
	v.SetDefault("db_path", "")
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("gap_timeout", 5*time.Second)
	v.SetDefault("retention", defaults.Retention)
	v.SetDefault("purge_every", defaults.PurgeEvery)
	v.SetDefault("max_read_failures", defaults.MaxReadFailures)
	v.SetDefault("membership_ttl", defaults.MembershipTTL)
	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)
	v.SetDefault("typing_expiry", 5*time.Second)
	v.SetDefault("watch", defaults.Watch)
	v.SetDefault("replay_from_start", false)
	v.SetDefault("log_level", "info")
	return nil
}

// Validate rejects configurations the bus cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("root is required")
	}
	if strings.TrimSpace(c.Instance) == "" {
		return fmt.Errorf("instance is required")
	}
	if strings.ContainsAny(c.Instance, `/\`) {
		return fmt.Errorf("instance %q must not contain path separators", c.Instance)
	}
	durations := map[string]time.Duration{
		"poll_interval":    c.PollInterval,
		"gap_timeout":      c.GapTimeout,
		"membership_ttl":   c.MembershipTTL,
		"shutdown_timeout": c.ShutdownTimeout,
		"typing_expiry":    c.TypingExpiry,
	}
	for key, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %s", c.Retention)
	}
	if c.PurgeEvery < 0 {
		return fmt.Errorf("purge_every must not be negative, got %d", c.PurgeEvery)
	}
	if c.MaxReadFailures <= 0 {
		return fmt.Errorf("max_read_failures must be positive, got %d", c.MaxReadFailures)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Bus returns the bus settings carried by the configuration.
func (c Config) Bus() bus.Config {
	return bus.Config{
		PollInterval:    c.PollInterval,
		Retention:       c.Retention,
		PurgeEvery:      c.PurgeEvery,
		MaxReadFailures: c.MaxReadFailures,
		MembershipTTL:   c.MembershipTTL,
		ShutdownTimeout: c.ShutdownTimeout,
		Watch:           c.Watch,
		ReplayFromStart: c.ReplayFromStart,
	}
}
