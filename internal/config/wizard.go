package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive credential prompt used when a query
// is submitted without any configured provider key.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new credential wizard reading from stdin.
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// NewWizardWith creates a wizard with explicit streams, for tests.
func NewWizardWith(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// PromptCredentials asks for provider API keys and fills them into cfg.
// At least one key must be entered.
func (w *Wizard) PromptCredentials(cfg *Config) error {
	validator := NewValidator()

	fmt.Fprintln(w.out, "No model credentials configured.")
	fmt.Fprintln(w.out)

	for _, provider := range []string{"openai", "anthropic"} {
		for {
			fmt.Fprintf(w.out, "%s API key (press Enter to skip): ", providerLabel(provider))
			key, err := w.readLine()
			if err != nil {
				return err
			}

			if key == "" {
				break
			}

			if err := validator.ValidateAPIKey(key, provider); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}

			cfg.Providers = append(cfg.Providers, ProviderConfig{
				Provider: provider,
				APIKey:   key,
			})
			break
		}
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one API key is required")
	}

	return nil
}

func providerLabel(provider string) string {
	switch provider {
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	default:
		return provider
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
