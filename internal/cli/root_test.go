package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so runs don't leak into each other
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args, capturing stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := GetRootCmd()
	resetFlags(cmd)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, _, err := execute(t, "--version")
		require.NoError(t, err)

		assert.Contains(t, out, "seqqueue version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		out, _, err := execute(t, "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "seqqueue")
		assert.Contains(t, out, "submission order")
		assert.Contains(t, out, "demo")
		assert.Contains(t, out, "soak")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("unknown command", func(t *testing.T) {
		_, _, err := execute(t, "start")
		assert.Error(t, err)
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestConfigCommands(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "seqqueue.json")

	t.Run("show defaults without a file", func(t *testing.T) {
		out, _, err := execute(t, "config", "show", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, `"default_timeout_ms": 3000`)
	})

	t.Run("init writes file", func(t *testing.T) {
		out, _, err := execute(t, "config", "init", "--config", configPath, "--force=false")
		require.NoError(t, err)
		assert.Contains(t, out, configPath)
		assert.FileExists(t, configPath)
	})

	t.Run("init refuses to overwrite", func(t *testing.T) {
		_, _, err := execute(t, "config", "init", "--config", configPath, "--force=false")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("init with force", func(t *testing.T) {
		_, _, err := execute(t, "config", "init", "--config", configPath, "--force")
		require.NoError(t, err)
	})

	t.Run("show reads environment override", func(t *testing.T) {
		t.Setenv("SEQQUEUE_QUEUE_NAME", "from-env")

		out, _, err := execute(t, "config", "show", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, `"name": "from-env"`)
	})

	t.Run("invalid log level flag", func(t *testing.T) {
		_, _, err := execute(t, "config", "show", "--config", configPath, "--log-level", "loud")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
