package agent

import (
	"fmt"
	"strings"
)

// promptSection is one augmentation backend's contribution to the
// prompt, or a degraded note when the backend failed.
type promptSection struct {
	Backend  string
	Text     string
	Degraded bool
}

// buildSystemPrompt assembles the role description and instruction
// list. Instructions are behavioral directives consumed by the remote
// model; they are never interpreted locally.
func buildSystemPrompt(role string, instructions []string) string {
	var b strings.Builder

	if role != "" {
		b.WriteString(role)
	} else {
		b.WriteString("You are a helpful assistant.")
	}

	if len(instructions) > 0 {
		b.WriteString("\n\nInstructions:\n")
		for _, instr := range instructions {
			fmt.Fprintf(&b, "- %s\n", instr)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// buildPrompt embeds augmentation results ahead of the user query so
// the model answers from the gathered context. Degraded sections keep
// their gap note visible to the model.
func buildPrompt(query string, sections []promptSection) string {
	if len(sections) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString("Context gathered from backends:\n\n")

	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.Backend, s.Text)
	}

	fmt.Fprintf(&b, "Using the context above, answer the following question. Respond in markdown.\n\nQuestion: %s", query)
	return b.String()
}
