package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardPromptCredentials(t *testing.T) {
	t.Run("accepts openai key", func(t *testing.T) {
		in := strings.NewReader("sk-test123\n\n")
		var out bytes.Buffer
		w := NewWizardWith(in, &out)

		cfg := DefaultConfig()
		err := w.PromptCredentials(cfg)

		require.NoError(t, err)
		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "openai", cfg.Providers[0].Provider)
		assert.Equal(t, "sk-test123", cfg.Providers[0].APIKey)
	})

	t.Run("re-prompts on malformed key", func(t *testing.T) {
		in := strings.NewReader("not-a-key\nsk-test123\n\n")
		var out bytes.Buffer
		w := NewWizardWith(in, &out)

		cfg := DefaultConfig()
		err := w.PromptCredentials(cfg)

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Error:")
		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "sk-test123", cfg.Providers[0].APIKey)
	})

	t.Run("requires at least one key", func(t *testing.T) {
		in := strings.NewReader("\n\n")
		var out bytes.Buffer
		w := NewWizardWith(in, &out)

		cfg := DefaultConfig()
		err := w.PromptCredentials(cfg)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least one API key")
	})

	t.Run("collects both providers", func(t *testing.T) {
		in := strings.NewReader("sk-openai1\nsk-ant-key1\n")
		var out bytes.Buffer
		w := NewWizardWith(in, &out)

		cfg := DefaultConfig()
		err := w.PromptCredentials(cfg)

		require.NoError(t, err)
		require.Len(t, cfg.Providers, 2)
		assert.Equal(t, "anthropic", cfg.Providers[1].Provider)
	})
}
