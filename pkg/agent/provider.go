package agent

import (
	"context"
	"fmt"
	"strings"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Credential represents authentication for one LLM provider
type Credential struct {
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
}

// ProviderCreator creates LLM providers from credentials.
type ProviderCreator interface {
	NewProvider(cred Credential) (LLMProvider, error)
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on the credential
func (f *ProviderFactory) NewProvider(cred Credential) (LLMProvider, error) {
	switch cred.Provider {
	case "anthropic":
		return NewAnthropicProvider(cred.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cred.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cred.Provider)
	}
}

// IsRetryableError checks if a provider error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Network errors
	if strings.Contains(errMsg, "ECONNRESET") || strings.Contains(errMsg, "ETIMEDOUT") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}
