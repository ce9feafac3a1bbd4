package team

import (
	"strings"

	"finsight/pkg/trace"
)

// Section is one agent's contribution to the merged answer, in the
// team's declared order. A failed agent yields a placeholder section.
type Section struct {
	Agent       string `json:"agent"`
	Text        string `json:"text"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Response is the outcome of one team run: the merged markdown answer
// plus the full ordered event log. It is created fresh per query and
// never shared across runs.
type Response struct {
	Answer   string        `json:"answer"`
	Sections []Section     `json:"sections"`
	Events   []trace.Event `json:"events,omitempty"`
}

// Markdown returns the final answer as a plain markdown document.
func (r Response) Markdown() string {
	return strings.TrimSpace(r.Answer) + "\n"
}

// Failed reports how many sections are placeholders.
func (r Response) Failed() int {
	n := 0
	for _, s := range r.Sections {
		if s.Placeholder {
			n++
		}
	}
	return n
}
