package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("default role", func(t *testing.T) {
		got := buildSystemPrompt("", nil)
		assert.Equal(t, "You are a helpful assistant.", got)
	})

	t.Run("role only", func(t *testing.T) {
		got := buildSystemPrompt("Search the web for information", nil)
		assert.Equal(t, "Search the web for information", got)
	})

	t.Run("role with instructions", func(t *testing.T) {
		got := buildSystemPrompt("Get financial data", []string{
			"Use tables to display data",
			"Cite the data source",
		})
		assert.Contains(t, got, "Get financial data")
		assert.Contains(t, got, "Instructions:")
		assert.Contains(t, got, "- Use tables to display data")
		assert.Contains(t, got, "- Cite the data source")
		assert.NotRegexp(t, `\n$`, got)
	})
}

func TestBuildPrompt(t *testing.T) {
	t.Run("no sections passes query through", func(t *testing.T) {
		assert.Equal(t, "what moved NVDA today?", buildPrompt("what moved NVDA today?", nil))
	})

	t.Run("sections precede the question", func(t *testing.T) {
		got := buildPrompt("summarize", []promptSection{
			{Backend: "web_search", Text: "1. Headline"},
			{Backend: "financial_data", Text: "Price: 128.44 USD"},
		})
		assert.Contains(t, got, "## web_search\n1. Headline")
		assert.Contains(t, got, "## financial_data\nPrice: 128.44 USD")
		assert.Contains(t, got, "Question: summarize")

		// Question comes after all context sections.
		assert.Greater(t, strings.Index(got, "Question:"), strings.Index(got, "## financial_data"))
	})

	t.Run("degraded section keeps its note", func(t *testing.T) {
		got := buildPrompt("q", []promptSection{
			{Backend: "web_search", Degraded: true, Text: "(web_search was unavailable: timeout)"},
		})
		assert.Contains(t, got, "(web_search was unavailable: timeout)")
	})
}
