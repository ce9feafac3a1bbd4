package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements LLMProvider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude
func (p *AnthropicProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqParams := anthropic.MessageNewParams{
		Model: anthropic.Model(request.Model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
		MaxTokens: int64(maxTokens),
	}

	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}

	if request.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Temperature)
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	content := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += b.Text
		}
	}

	if content == "" {
		return nil, fmt.Errorf("no text content returned")
	}

	return &LLMResponse{
		Content: content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
