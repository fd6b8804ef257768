package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/config"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// loadedConfig runs the root command's config loading for args and
// returns the result.
func loadedConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	opts := &RootOptions{}
	root := newRootCommand(opts)
	root.AddCommand(&cobra.Command{
		Use:  "probe",
		RunE: func(*cobra.Command, []string) error { return nil },
	})
	root.SetArgs(append([]string{"probe"}, args...))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return opts.Config, err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ground", cmd.Use)
	assert.Contains(t, cmd.Long, "version history")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "leaves", "dag", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	for _, name := range []string{"config", "backend", "db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "leaves", "--db", filepath.Join(t.TempDir(), "g.db"), "--format", "yaml", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ground.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
backend: badger
path: from-file
id_block_size: 16
log:
  level: warn
`), 0o644))

	t.Run("file", func(t *testing.T) {
		cfg, err := loadedConfig(t, "--config", cfgPath)
		require.NoError(t, err)
		assert.Equal(t, config.BackendBadger, cfg.Backend)
		assert.Equal(t, "from-file", cfg.Path)
		assert.Equal(t, int64(16), cfg.IDBlockSize)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("GROUND_PATH", "from-env")
		cfg, err := loadedConfig(t, "--config", cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Path)
	})

	t.Run("flags beat env", func(t *testing.T) {
		t.Setenv("GROUND_PATH", "from-env")
		cfg, err := loadedConfig(t, "--config", cfgPath, "--db", "from-flag", "--backend", "sqlite", "-v")
		require.NoError(t, err)
		assert.Equal(t, config.BackendSQLite, cfg.Backend)
		assert.Equal(t, "from-flag", cfg.Path)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := loadedConfig(t, "--backend", "postgres")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "unknown backend")
	})
}
