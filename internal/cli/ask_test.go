package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"ask", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "markdown")
		assert.Contains(t, helpText, "--output")
		assert.Contains(t, helpText, "--trace")
	})
}

func TestExportMarkdown(t *testing.T) {
	t.Run("writes titled file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "answer.md")

		err := exportMarkdown(path, "NVDA outlook", "## Web Agent\n\nshares rose")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# NVDA outlook")
		assert.Contains(t, string(data), "shares rose")
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "deep", "answer.md")

		err := exportMarkdown(path, "q", "a")
		require.NoError(t, err)

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})
}
