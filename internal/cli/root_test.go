package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "finsight version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "Finsight")
		assert.Contains(t, helpText, "agents")
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

	t.Run("expected subcommands registered", func(t *testing.T) {
		cmd := GetRootCmd()

		names := make(map[string]bool)
		for _, c := range cmd.Commands() {
			names[c.Name()] = true
		}

		for _, want := range []string{"ask", "serve", "status", "stop"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, version, GetVersion())
}
