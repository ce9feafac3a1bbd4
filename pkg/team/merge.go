package team

import (
	"context"
	"fmt"
	"strings"

	"finsight/pkg/agent"
)

// MergeMode selects how agent sections become one answer.
type MergeMode string

const (
	// MergeTemplate concatenates labeled sections deterministically.
	// Given identical agent outputs, the merged answer is identical.
	MergeTemplate MergeMode = "template"
	// MergeModel applies the team's instruction list in a final model
	// pass over the template output. Output content varies with
	// sampling; only the template mode is deterministic.
	MergeModel MergeMode = "model"
)

// ValidMergeMode reports whether mode is a known merge mode.
func ValidMergeMode(mode MergeMode) bool {
	return mode == MergeTemplate || mode == MergeModel
}

// mergeTemplate renders sections in declared order, each under its own
// labeled heading. Placeholder sections keep their reason visible.
func mergeTemplate(sections []Section, instructions []string) string {
	var b strings.Builder

	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Agent)
		if s.Placeholder {
			fmt.Fprintf(&b, "_Section unavailable: %s_\n\n", s.Reason)
			continue
		}
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String())
}

// mergeModel reformats the template output with one additional model
// call carrying the team instructions. Falls back to the template
// output when the pass fails: a formatting failure must not lose the
// agents' answers.
func (t *Team) mergeModel(ctx context.Context, sections []Section) string {
	templated := mergeTemplate(sections, t.config.Instructions)

	system := "You combine research sections from multiple analysts into one coherent markdown report. Keep every section's substance and label."
	if len(t.config.Instructions) > 0 {
		system += "\n\nInstructions:\n"
		for _, instr := range t.config.Instructions {
			system += "- " + instr + "\n"
		}
	}

	response, err := t.provider.Call(ctx, agent.LLMRequest{
		Model:        t.config.Model,
		SystemPrompt: strings.TrimRight(system, "\n"),
		Prompt:       templated,
		Temperature:  t.config.Temperature,
		MaxTokens:    t.config.MaxTokens,
	})
	if err != nil {
		t.logger.Warn().Err(err).Msg("Merge model pass failed; using template output")
		return templated
	}

	return response.Content
}
