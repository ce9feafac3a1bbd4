package service

import (
	"fmt"
	"strings"
	"time"

	"finsight/internal/config"
	"finsight/pkg/agent"
	"finsight/pkg/backend"
	"finsight/pkg/backend/finance"
	"finsight/pkg/backend/search"
	"finsight/pkg/team"
	"finsight/pkg/trace"

	"github.com/rs/zerolog"
)

// FromConfig assembles the canonical service: backends, agents and
// team built from configuration. sink, when non-nil, receives live
// trace events from every run.
func FromConfig(cfg *config.Config, sink trace.Sink, logger zerolog.Logger) (*Service, error) {
	creds := credentialMap(cfg)
	factory := &agent.ProviderFactory{}

	backends, err := buildBackends(cfg, logger)
	if err != nil {
		return nil, err
	}

	agents := make([]*agent.Agent, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		provider, err := providerForModel(ac.Model, creds, factory)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}

		augmentations := make([]backend.Invoker, 0, len(ac.Backends))
		for _, name := range ac.Backends {
			inv, ok := backends[name]
			if !ok {
				return nil, fmt.Errorf("agent %s: unknown backend %s", ac.Name, name)
			}
			augmentations = append(augmentations, inv)
		}

		agentCfg := agent.DefaultConfig()
		agentCfg.Name = ac.Name
		agentCfg.Role = ac.Role
		agentCfg.Instructions = ac.Instructions
		if ac.Model != "" {
			agentCfg.Model = ac.Model
		}
		if ac.Temperature != 0 {
			agentCfg.Temperature = ac.Temperature
		}
		if ac.MaxTokens != 0 {
			agentCfg.MaxTokens = ac.MaxTokens
		}
		if ac.MaxRetries != 0 {
			agentCfg.MaxRetries = ac.MaxRetries
		}

		a, err := agent.New(agentCfg, provider, augmentations, logger)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		agents = append(agents, a)
	}

	var mergeProvider agent.LLMProvider
	if team.MergeMode(cfg.Team.MergeMode) == team.MergeModel {
		mergeProvider, err = providerForModel(cfg.Team.Model, creds, factory)
		if err != nil {
			return nil, fmt.Errorf("team: %w", err)
		}
	}

	tm, err := team.New(team.Config{
		Name:         cfg.Team.Name,
		Instructions: cfg.Team.Instructions,
		MergeMode:    team.MergeMode(cfg.Team.MergeMode),
		Model:        cfg.Team.Model,
		Timeout:      time.Duration(cfg.Team.TimeoutSeconds) * time.Second,
	}, agents, mergeProvider, logger)
	if err != nil {
		return nil, err
	}

	return New(Config{
		Team:   tm,
		Check:  credentialCheck(cfg),
		Sink:   sink,
		Logger: logger,
	})
}

func credentialMap(cfg *config.Config) map[string]string {
	creds := make(map[string]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.APIKey != "" {
			creds[p.Provider] = p.APIKey
		}
	}
	return creds
}

// providerName maps a model id onto its provider.
func providerName(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic"
	}
	return "openai"
}

func providerForModel(model string, creds map[string]string, factory *agent.ProviderFactory) (agent.LLMProvider, error) {
	name := providerName(model)
	key, ok := creds[name]
	if !ok {
		return nil, fmt.Errorf("no %s credential configured for model %s", name, model)
	}
	return factory.NewProvider(agent.Credential{Provider: name, APIKey: key})
}

// credentialCheck verifies every configured model has a usable key.
// It runs on each Submit so config reloads take effect immediately.
func credentialCheck(cfg *config.Config) CredentialCheck {
	return func() error {
		creds := credentialMap(cfg)
		if len(creds) == 0 {
			return fmt.Errorf("no model credentials configured")
		}
		for _, ac := range cfg.Agents {
			name := providerName(ac.Model)
			if _, ok := creds[name]; !ok {
				return fmt.Errorf("agent %s needs a %s credential", ac.Name, name)
			}
		}
		return nil
	}
}

func buildBackends(cfg *config.Config, logger zerolog.Logger) (map[string]backend.Invoker, error) {
	policy := backend.DefaultRetryPolicy()

	searchOpts := []search.Option{}
	if cfg.Search.Endpoint != "" {
		searchOpts = append(searchOpts, search.WithEndpoint(cfg.Search.Endpoint))
	}
	if cfg.Search.TopN > 0 {
		searchOpts = append(searchOpts, search.WithTopN(cfg.Search.TopN))
	}

	financeOpts := []finance.Option{}
	if cfg.Finance.Endpoint != "" {
		financeOpts = append(financeOpts, finance.WithEndpoint(cfg.Finance.Endpoint))
	}

	return map[string]backend.Invoker{
		"web_search":     backend.WithRetry(search.New(searchOpts...), policy, logger),
		"financial_data": backend.WithRetry(finance.New(financeOpts...), policy, logger),
	}, nil
}
