package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main finsight configuration
type Config struct {
	// Providers

	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Agents
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// Team
	Team TeamConfig `json:"team" mapstructure:"team"`

	// Data backends
	Search  SearchConfig  `json:"search" mapstructure:"search"`
	Finance FinanceConfig `json:"finance" mapstructure:"finance"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderConfig holds one model provider credential
type ProviderConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// AgentConfig represents an agent configuration
type AgentConfig struct {
	Name         string   `json:"name" mapstructure:"name"`
	Role         string   `json:"role" mapstructure:"role"`
	Instructions []string `json:"instructions" mapstructure:"instructions"`
	Model        string   `json:"model" mapstructure:"model"`
	Temperature  float64  `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int      `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries   int      `json:"max_retries" mapstructure:"max_retries"`
	Backends     []string `json:"backends" mapstructure:"backends"` // web_search, financial_data
}

// TeamConfig holds aggregator configuration
type TeamConfig struct {
	Name           string   `json:"name" mapstructure:"name"`
	Instructions   []string `json:"instructions" mapstructure:"instructions"`
	MergeMode      string   `json:"merge_mode" mapstructure:"merge_mode"` // template, model
	Model          string   `json:"model" mapstructure:"model"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// SearchConfig holds web search backend configuration
type SearchConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	TopN     int    `json:"top_n" mapstructure:"top_n"`
}

// FinanceConfig holds financial data backend configuration
type FinanceConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: []ProviderConfig{},
		Agents: []AgentConfig{
			{
				Name: "Web Agent",
				Role: "Search the web for information",
				Instructions: []string{
					"Always include sources",
				},
				Model:       "gpt-4o",
				Temperature: 0.7,
				MaxTokens:   4096,
				MaxRetries:  3,
				Backends:    []string{"web_search"},
			},
			{
				Name: "Finance Agent",
				Role: "Get financial data",
				Instructions: []string{
					"Use tables to display data",
				},
				Model:       "gpt-4o",
				Temperature: 0.7,
				MaxTokens:   4096,
				MaxRetries:  3,
				Backends:    []string{"financial_data"},
			},
		},
		Team: TeamConfig{
			Name: "Finance Research Team",
			Instructions: []string{
				"Always include sources",
				"Use tables to display data",
			},
			MergeMode:      "template",
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
		},
		Search: SearchConfig{
			TopN: 5,
		},
		Finance: FinanceConfig{},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			SharedSecret: "",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// knownBackends lists the augmentation backends agents may reference.
var knownBackends = map[string]bool{
	"web_search":     true,
	"financial_data": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no model credentials configured: at least one provider is required")
	}

	for i, p := range c.Providers {
		if p.Provider == "" {
			return fmt.Errorf("provider %d: provider name is required", i)
		}
		if p.Provider != "anthropic" && p.Provider != "openai" {
			return fmt.Errorf("provider %d: invalid provider %s (must be: anthropic, openai)", i, p.Provider)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", p.Provider)
		}
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agent %d: name is required", i)
		}
		if seen[agent.Name] {
			return fmt.Errorf("agent %s: duplicate name", agent.Name)
		}
		seen[agent.Name] = true
		if agent.Model == "" {
			return fmt.Errorf("agent %s: model is required", agent.Name)
		}
		for _, b := range agent.Backends {
			if !knownBackends[b] {
				return fmt.Errorf("agent %s: unknown backend %s", agent.Name, b)
			}
		}
	}

	if c.Team.MergeMode != "" && c.Team.MergeMode != "template" && c.Team.MergeMode != "model" {
		return fmt.Errorf("invalid merge mode: %s (must be: template, model)", c.Team.MergeMode)
	}
	if c.Team.MergeMode == "model" && c.Team.Model == "" {
		return fmt.Errorf("team model is required when merge mode is model")
	}

	return nil
}
