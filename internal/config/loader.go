package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".finsight", "finsight.json")
	}

	// Missing file falls back to defaults plus environment overrides
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvCredentials(cfg)
		return applyPathDefaults(cfg)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("FINSIGHT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ValidateSchema(v.ConfigFileUsed()); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvCredentials(cfg)
	return applyPathDefaults(cfg)
}

// applyEnvCredentials picks up provider API keys from the process
// environment when the file did not set them.
func applyEnvCredentials(cfg *Config) {
	fromEnv := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
	}
	for provider, key := range fromEnv {
		if key == "" {
			continue
		}
		found := false
		for i := range cfg.Providers {
			if cfg.Providers[i].Provider == provider {
				if cfg.Providers[i].APIKey == "" {
					cfg.Providers[i].APIKey = key
				}
				found = true
			}
		}
		if !found {
			cfg.Providers = append(cfg.Providers, ProviderConfig{Provider: provider, APIKey: key})
		}
	}
}

func applyPathDefaults(cfg *Config) (*Config, error) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".finsight")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "finsight.log")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".finsight", "finsight.json")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("providers", cfg.Providers)
	v.Set("agents", cfg.Agents)
	v.Set("team", cfg.Team)
	v.Set("search", cfg.Search)
	v.Set("finance", cfg.Finance)
	v.Set("logging", cfg.Logging)
	v.Set("gateway", cfg.Gateway)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".finsight", "finsight.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
