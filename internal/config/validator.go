package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	// Check if it's a known model
	knownModels := []string{
		"claude-opus-4",
		"claude-sonnet-4",
		"claude-haiku-4",
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
	}

	for _, known := range knownModels {
		if model == known {
			return nil
		}
	}

	// Allow custom models (just warn)
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateMergeMode validates the team merge mode
func (v *Validator) ValidateMergeMode(mode string) error {
	if mode == "" {
		return nil // Use default
	}

	validModes := []string{"template", "model"}
	for _, valid := range validModes {
		if mode == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid merge mode: %s (must be one of: %s)", mode, strings.Join(validModes, ", "))
}

// ValidateBackend validates an augmentation backend name
func (v *Validator) ValidateBackend(name string) error {
	if knownBackends[name] {
		return nil
	}
	valid := make([]string, 0, len(knownBackends))
	for b := range knownBackends {
		valid = append(valid, b)
	}
	return fmt.Errorf("unknown backend: %s (must be one of: %s)", name, strings.Join(valid, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, p := range cfg.Providers {
		if p.Provider != "" {
			if err := v.ValidateAPIKey(p.APIKey, p.Provider); err != nil {
				errors = append(errors, fmt.Errorf("provider %d (%s): %w", i, p.Provider, err))
			}
		}
	}

	for i, agent := range cfg.Agents {
		if err := v.ValidateModel(agent.Model); err != nil {
			errors = append(errors, fmt.Errorf("agent %d (%s): %w", i, agent.Name, err))
		}
		if agent.Temperature != 0 {
			if err := v.ValidateTemperature(agent.Temperature); err != nil {
				errors = append(errors, fmt.Errorf("agent %d (%s): %w", i, agent.Name, err))
			}
		}
		if agent.MaxTokens != 0 {
			if err := v.ValidateMaxTokens(agent.MaxTokens); err != nil {
				errors = append(errors, fmt.Errorf("agent %d (%s): %w", i, agent.Name, err))
			}
		}
		for _, b := range agent.Backends {
			if err := v.ValidateBackend(b); err != nil {
				errors = append(errors, fmt.Errorf("agent %d (%s): %w", i, agent.Name, err))
			}
		}
	}

	if err := v.ValidateMergeMode(cfg.Team.MergeMode); err != nil {
		errors = append(errors, err)
	}
	if cfg.Team.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("team timeout_seconds must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
