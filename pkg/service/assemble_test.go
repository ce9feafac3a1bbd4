package service

import (
	"testing"

	"finsight/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemblableConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.ProviderConfig{
		{Provider: "openai", APIKey: "sk-test-key"},
	}
	return cfg
}

func TestFromConfig(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("default config assembles", func(t *testing.T) {
		svc, err := FromConfig(assemblableConfig(), nil, logger)
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Len(t, svc.team.Agents(), 2)
	})

	t.Run("missing credential fails per agent", func(t *testing.T) {
		cfg := assemblableConfig()
		cfg.Agents[0].Model = "claude-sonnet-4-20250514"

		_, err := FromConfig(cfg, nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic credential")
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := assemblableConfig()
		cfg.Agents[0].Backends = []string{"crystal_ball"}

		_, err := FromConfig(cfg, nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backend")
	})

	t.Run("model merge requires team credential", func(t *testing.T) {
		cfg := assemblableConfig()
		cfg.Team.MergeMode = "model"
		cfg.Team.Model = "claude-sonnet-4-20250514"

		_, err := FromConfig(cfg, nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "team:")
	})
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "anthropic", providerName("claude-sonnet-4-20250514"))
	assert.Equal(t, "openai", providerName("gpt-4o"))
	assert.Equal(t, "openai", providerName("o3-mini"))
}

func TestCredentialCheck(t *testing.T) {
	t.Run("passes with matching credentials", func(t *testing.T) {
		check := credentialCheck(assemblableConfig())
		assert.NoError(t, check())
	})

	t.Run("fails with no credentials", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Providers = nil
		check := credentialCheck(cfg)
		err := check()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no model credentials")
	})

	t.Run("fails when an agent's provider has no key", func(t *testing.T) {
		cfg := assemblableConfig()
		cfg.Agents[0].Model = "claude-sonnet-4-20250514"
		check := credentialCheck(cfg)
		err := check()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic credential")
	})

	t.Run("reflects config mutation", func(t *testing.T) {
		cfg := assemblableConfig()
		check := credentialCheck(cfg)
		require.NoError(t, check())

		cfg.Providers = nil
		assert.Error(t, check())
	})
}
