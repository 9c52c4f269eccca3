package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CHATBUS_ROOT", root)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, root, cfg.Root)
	require.Equal(t, "default", cfg.Instance)
	require.Equal(t, filepath.Join(root, "chatbus.db"), cfg.DBPath)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.GapTimeout)
	require.Equal(t, 24*time.Hour, cfg.Retention)
	require.Equal(t, 240, cfg.PurgeEvery)
	require.Equal(t, 5, cfg.MaxReadFailures)
	require.True(t, cfg.Watch)
	require.False(t, cfg.ReplayFromStart)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.ConfigFile)
}

func TestLoadDefaultInstanceOnlyWhenUnset(t *testing.T) {
	t.Setenv("CHATBUS_ROOT", t.TempDir())

	cfg, err := Load(LoadOptions{DefaultInstance: "chat-alice"})
	require.NoError(t, err)
	require.Equal(t, "chat-alice", cfg.Instance)

	t.Setenv("CHATBUS_INSTANCE", "from-env")
	cfg, err = Load(LoadOptions{DefaultInstance: "chat-alice"})
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Instance)
}

func TestLoadRootConfigFileWithEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CHATBUS_ROOT", root)
	t.Setenv("CHATBUS_POLL_INTERVAL", "100ms")

	content := []byte("instance: alice\npoll_interval: 2s\nretention: 1h\nwatch: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "chatbus.yaml"), content, 0o600))

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.Instance)
	require.Equal(t, 100*time.Millisecond, cfg.PollInterval, "env beats file")
	require.Equal(t, time.Hour, cfg.Retention)
	require.False(t, cfg.Watch)
	require.Equal(t, filepath.Join(root, "chatbus.yaml"), cfg.ConfigFile)
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	t.Setenv("CHATBUS_ROOT", t.TempDir())
	t.Setenv("CHATBUS_INSTANCE", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("instance", "", "")
	flags.String("root", "", "")
	require.NoError(t, flags.Parse([]string{"--instance", "from-flag"}))

	cfg, err := Load(LoadOptions{Flags: flags})
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.Instance)
	require.NotEmpty(t, cfg.Root, "unset flag must not clear the env value")
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("CHATBUS_ROOT", t.TempDir())
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("CHATBUS_ROOT", t.TempDir())
	base, err := Load(LoadOptions{})
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"empty root":         func(c *Config) { c.Root = "" },
		"zero poll interval": func(c *Config) { c.PollInterval = 0 },
		"negative gap":       func(c *Config) { c.GapTimeout = -time.Second },
		"instance separator": func(c *Config) { c.Instance = "a/b" },
		"bad log level":      func(c *Config) { c.LogLevel = "loud" },
		"zero failures":      func(c *Config) { c.MaxReadFailures = 0 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}

	require.NoError(t, base.Validate())
	require.Equal(t, base.PollInterval, base.Bus().PollInterval)
}
